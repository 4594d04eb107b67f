// Package dkg implements the DistributedKeyGeneration state machine of
// spec.md §4.4: Init, CreateMesh, Part1Send, Part1Fetch, Part1Check,
// Part2Build, Part2Send, Part2Fetch, Part3Build.
package dkg

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	pkgerrors "github.com/pkg/errors"
)

// Sentinel error kinds (spec.md §7's taxonomy of kinds, not exception
// types). Each phase wraps one of these with pkg/errors.Wrap to attach
// the offending peer or phase before returning it up to the caller.
var (
	ErrConfigIO         = errors.New("dkg: config I/O failure")
	ErrTicketParse      = errors.New("dkg: malformed ticket")
	ErrTransportConnect = errors.New("dkg: cannot reach peer")
	ErrAuthDenied       = errors.New("dkg: authentication denied")
	ErrLibraryError     = errors.New("dkg: threshold library rejected its inputs")
	ErrRound1Mismatch   = errors.New("dkg: round-1 packages diverge across peers")
	ErrMissingPackage   = errors.New("dkg: expected package not present")
	ErrRestrictedAccess = errors.New("dkg: restricted access")
)

// retry runs fn up to attempts times, returning nil on the first
// success. On exhaustion it returns every attempt's error bundled
// together (spec.md §9: "wrap transient auth and dial operations in a
// small retry combinator with a fixed bound... do not add exponential
// backoff").
func retry(attempts int, fn func() error) error {
	var result error
	for i := 0; i < attempts; i++ {
		if err := fn(); err == nil {
			return nil
		} else {
			result = multierror.Append(result, err)
		}
	}
	return result
}

func wrapf(base error, format string, args ...interface{}) error {
	return pkgerrors.Wrap(base, fmt.Sprintf(format, args...))
}
