package frost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func runDKG(t *testing.T, n, tt int) (ids []Identifier, shares []KeyShare, verifyingKeys [][]byte) {
	t.Helper()

	ids = make([]Identifier, n)
	for i := 0; i < n; i++ {
		var raw [32]byte
		raw[0] = byte(i + 1)
		ids[i] = DeriveIdentifier(raw)
	}

	secrets := make([]Round1Secret, n)
	packages := make(map[string]Round1Package, n)
	for i := 0; i < n; i++ {
		secret, pkg, err := GenerateRound1(ids[i], n, tt)
		require.NoError(t, err)
		secrets[i] = secret
		packages[ids[i].Key()] = pkg
	}
	for _, pkg := range packages {
		require.NoError(t, VerifyRound1Package(pkg))
	}

	round2Secrets := make([]Round2Secret, n)
	round2Out := make([]map[string]Round2Package, n)
	for i := 0; i < n; i++ {
		var others []Identifier
		for j := 0; j < n; j++ {
			if j != i {
				others = append(others, ids[j])
			}
		}
		secret2, out, err := GenerateRound2(ids[i], secrets[i], others)
		require.NoError(t, err)
		round2Secrets[i] = secret2
		round2Out[i] = out
	}

	for i := 0; i < n; i++ {
		received := make(map[string]Round2Package)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			received[ids[j].Key()] = round2Out[j][ids[i].Key()]
		}
		share, _, vk, err := FinalizeRound3(ids[i], round2Secrets[i], packages, received)
		require.NoError(t, err)
		shares = append(shares, share)
		verifyingKeys = append(verifyingKeys, vk)
	}
	return
}

func TestDKG3of3(t *testing.T) {
	_, shares, vks := runDKG(t, 3, 3)
	for i := 1; i < len(vks); i++ {
		require.Equal(t, vks[0], vks[i], "verifying keys must match across all participants")
	}
	require.NotEqual(t, shares[0].Share, shares[1].Share, "key shares must differ per participant")
}

func TestDKG3of2Quorum(t *testing.T) {
	_, shares, vks := runDKG(t, 3, 2)
	require.Len(t, shares, 3)
	for i := 1; i < len(vks); i++ {
		require.Equal(t, vks[0], vks[i])
	}
}

func TestDKGSingleShare(t *testing.T) {
	_, shares, vks := runDKG(t, 1, 1)
	require.Len(t, shares, 1)
	require.Len(t, vks, 1)
}

func TestVerifyRound1PackageRejectsTamperedProof(t *testing.T) {
	var raw [32]byte
	raw[0] = 7
	id := DeriveIdentifier(raw)
	_, pkg, err := GenerateRound1(id, 3, 2)
	require.NoError(t, err)

	pkg.ProofZ = addMod(pkg.ProofZ, bigOne())
	require.Error(t, VerifyRound1Package(pkg))
}
