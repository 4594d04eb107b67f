package frostyrpc

import "errors"

// ErrRestricted is returned by Part2Fetch when the caller is not the
// server's own hosting process (spec.md §4.2).
var ErrRestricted = errors.New("frostyrpc: restricted to the local process")
