package frost

import (
	"crypto/ed25519"
	"fmt"
)

// FinalizeRound3 verifies every received round-2 share against the
// sender's round-1 Feldman commitments, sums them (plus this
// participant's own self-evaluation) into a key share, and derives the
// group's public verification data (spec.md §4.4, Part3Build).
//
// round1Packages must contain every participant in the final roster,
// including self, and must already have passed the cross-peer
// byte-equality check (spec.md §4.4, Part1Check) — this function only
// checks the Feldman commitment, not cross-peer agreement.
func FinalizeRound3(
	selfID Identifier,
	selfSecret Round2Secret,
	round1Packages map[string]Round1Package,
	round2Packages map[string]Round2Package,
) (KeyShare, PublicShare, ed25519.PublicKey, error) {
	share := selfSecret.selfShare

	for key, pkg := range round1Packages {
		if key == selfID.Key() {
			continue
		}
		received, ok := round2Packages[key]
		if !ok {
			return KeyShare{}, PublicShare{}, nil, fmt.Errorf("frost: missing round2 package from %x", pkg.Sender.Bytes())
		}
		expected := evalCommitment(pkg.Commitment, selfID.scalar())
		got := scalarBaseMult(received.Share)
		if got.X.Cmp(expected.X) != 0 || got.Y.Cmp(expected.Y) != 0 {
			return KeyShare{}, PublicShare{}, nil, fmt.Errorf("frost: share from %x fails Feldman verification", pkg.Sender.Bytes())
		}
		share = addMod(share, received.Share)
	}

	verification := make(map[string]Point, len(round1Packages))
	groupPublic := Point{X: bigZero(), Y: bigOne()} // identity
	for _, pkg := range round1Packages {
		groupPublic = pointAdd(groupPublic, pkg.Commitment[0])
	}
	for key := range round1Packages {
		id := idFromKey(key)
		sum := Point{X: bigZero(), Y: bigOne()}
		for _, pkg := range round1Packages {
			sum = pointAdd(sum, evalCommitment(pkg.Commitment, id.scalar()))
		}
		verification[key] = sum
	}

	keyShare := KeyShare{Identifier: selfID, Share: share}
	publicShare := PublicShare{Verification: verification}
	verifyingKey := compressPoint(groupPublic)
	return keyShare, publicShare, verifyingKey, nil
}

func idFromKey(key string) Identifier {
	return IdentifierFromBytes([]byte(key))
}
