package frost

import (
	"crypto/sha512"
	"fmt"
	"math/big"
)

// GenerateRound1 samples a fresh degree-(t-1) polynomial, commits to its
// coefficients, and produces a Schnorr proof of knowledge of the
// constant term (spec.md §4.4, Part1Send: "invoke the threshold
// library's round-1 primitive with (identifier, n, t, rng)").
func GenerateRound1(id Identifier, n, t int) (Round1Secret, Round1Package, error) {
	if t < 1 || t > n {
		return Round1Secret{}, Round1Package{}, fmt.Errorf("frost: invalid threshold t=%d for n=%d", t, n)
	}
	coefficients := make([]*big.Int, t)
	commitment := make([]Point, t)
	for k := 0; k < t; k++ {
		c, err := randScalar()
		if err != nil {
			return Round1Secret{}, Round1Package{}, fmt.Errorf("frost: sample coefficient: %w", err)
		}
		coefficients[k] = c
		commitment[k] = scalarBaseMult(c)
	}

	nonce, err := randScalar()
	if err != nil {
		return Round1Secret{}, Round1Package{}, fmt.Errorf("frost: sample proof nonce: %w", err)
	}
	proofR := scalarBaseMult(nonce)
	challenge := proofChallenge(id, proofR, commitment[0])
	proofZ := addMod(nonce, mulMod(challenge, coefficients[0]))

	secret := Round1Secret{coefficients: coefficients}
	pkg := Round1Package{
		Sender:     id,
		Commitment: commitment,
		ProofR:     proofR,
		ProofZ:     proofZ,
	}
	return secret, pkg, nil
}

// VerifyRound1Package checks a received package's Schnorr proof of
// knowledge before it is ever used to build round-2 input. A failure
// here is a LibraryError (spec.md §7): either a buggy sender or a
// server tampering with what it relays.
func VerifyRound1Package(pkg Round1Package) error {
	if len(pkg.Commitment) == 0 {
		return fmt.Errorf("frost: round1 package has no commitments")
	}
	challenge := proofChallenge(pkg.Sender, pkg.ProofR, pkg.Commitment[0])
	lhs := scalarBaseMult(pkg.ProofZ)
	rhs := pointAdd(pkg.ProofR, pointScalarMult(pkg.Commitment[0], challenge))
	if lhs.X.Cmp(rhs.X) != 0 || lhs.Y.Cmp(rhs.Y) != 0 {
		return fmt.Errorf("frost: round1 package from %x fails proof of knowledge", pkg.Sender.Bytes())
	}
	return nil
}

// proofChallenge binds the proof to the sender's identifier and
// constant-term commitment (RFC 9591 §4.2.1's "proof of knowledge").
func proofChallenge(id Identifier, r, constantCommit Point) *big.Int {
	h := sha512.New()
	h.Write([]byte("frosty-frost-dkg-pok-v1"))
	h.Write(id.Bytes())
	h.Write(r.X.Bytes())
	h.Write(r.Y.Bytes())
	h.Write(constantCommit.X.Bytes())
	h.Write(constantCommit.Y.Bytes())
	return new(big.Int).Mod(new(big.Int).SetBytes(h.Sum(nil)), order())
}
