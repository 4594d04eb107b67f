package frost

import (
	"crypto/sha512"
	"io"
	"math/big"

	"golang.org/x/crypto/hkdf"
)

// DeriveIdentifier maps a 32-byte transport endpoint id onto a nonzero
// scalar identifier for use inside the threshold scheme (spec.md §4.4).
// HKDF-SHA512 gives a uniform, domain-separated scalar; the tiny-bias
// reduction mod the group order is acceptable here since the identifier
// is public and only needs to be distinct and nonzero, not uniformly
// random in a security-critical sense.
func DeriveIdentifier(endpointID [32]byte) Identifier {
	h := hkdf.New(sha512.New, endpointID[:], nil, []byte("frosty-identifier-v1"))
	buf := make([]byte, 48) // extra width to shrink the mod-L reduction bias
	if _, err := io.ReadFull(h, buf); err != nil {
		panic("frost: hkdf expand failed: " + err.Error())
	}
	v := new(big.Int).Mod(new(big.Int).SetBytes(buf), order())
	if v.Sign() == 0 {
		v = big.NewInt(1) // identifier 0 would collapse Lagrange interpolation
	}
	return Identifier{v: v}
}

// IdentifierFromBytes reconstructs an Identifier from its Bytes() form,
// used when decoding a Round2Package addressed to a recipient.
func IdentifierFromBytes(b []byte) Identifier {
	return Identifier{v: new(big.Int).Mod(new(big.Int).SetBytes(b), order())}
}
