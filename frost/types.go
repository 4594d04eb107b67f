// Package frost implements the threshold Ed25519 (FROST) distributed key
// generation rounds that spec.md §4.4 calls "the threshold library's
// round-1/round-2/round-3 primitives". Curve arithmetic is done on the
// twisted Edwards curve from github.com/decred/dcrd/dcrec/edwards/v2;
// scalar arithmetic is plain math/big reduced mod the curve's group
// order. Hash-to-scalar uses SHA-512, as RFC 9591's FROST-Ed25519
// ciphersuite does, but under this package's own domain-separation
// strings rather than the RFC's context string.
package frost

import "math/big"

// Identifier is a participant's scalar identifier inside the threshold
// scheme, derived from its 32-byte transport EndpointID (spec.md §4.4,
// "Identifier derivation asymmetry" — this package never sees or stores
// the EndpointID itself, only the derived scalar; the caller is
// responsible for keeping the EndpointID↔Identifier mapping).
type Identifier struct {
	v *big.Int
}

// Bytes returns the big-endian, curve-order-width encoding of the
// identifier, used as a stable map key and for hashing.
func (id Identifier) Bytes() []byte {
	b := id.v.Bytes()
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// Key returns a value usable as a Go map key.
func (id Identifier) Key() string { return string(id.Bytes()) }

func (id Identifier) scalar() *big.Int { return id.v }

// Point is an affine point on the twisted Edwards curve.
type Point struct {
	X, Y *big.Int
}

// Round1Package is a participant's public broadcast in phase one: its
// Feldman/Pedersen commitments to a degree-(t-1) polynomial, plus a
// Schnorr proof of knowledge of the constant term. It must be
// byte-identical across every participant's view (spec.md §3).
type Round1Package struct {
	Sender     Identifier
	Commitment []Point // degree t-1: Commitment[k] = coefficient_k * G
	ProofR     Point   // Schnorr nonce commitment
	ProofZ     *big.Int
}

// Round1Secret is the polynomial coefficients behind a Round1Package.
// Never transmitted (spec.md §3).
type Round1Secret struct {
	coefficients []*big.Int // degree t-1; coefficients[0] is this participant's long-term contribution
}

// Round2Package is one Shamir share, sent confidentially from Sender to
// Recipient (spec.md §3).
type Round2Package struct {
	Sender    Identifier
	Recipient Identifier
	Share     *big.Int
}

// Round2Secret is a participant's own evaluation of its round-1
// polynomial at its own identifier — needed in round 3 but never sent
// anywhere (spec.md §3).
type Round2Secret struct {
	selfShare *big.Int
}

// KeyShare is a participant's final signing share.
type KeyShare struct {
	Identifier Identifier
	Share      *big.Int
}

// PublicShare is the set of per-participant verification points, one per
// participant in the final roster (spec.md §8: "commits to n shares").
type PublicShare struct {
	Verification map[string]Point // keyed by Identifier.Key()
}
