package dkg

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zignig/frosty/frost"
	"github.com/zignig/frosty/frostycfg"
	"github.com/zignig/frosty/frostyrpc"
	"github.com/zignig/frosty/transport"
)

// testParticipant bundles one participant's transport endpoint, RPC
// server, and config. Every participant's Dialer dials the address a
// peer registered with the coordinator during Auth — standing in for the
// address-discovery step spec.md §1 puts outside this core's scope; the
// registry handed to makeDialer is not consulted.
type testParticipant struct {
	id       transport.Identity
	endpoint *transport.Endpoint
	server   *frostyrpc.Server
	cfg      *frostycfg.Config
}

func newTestParticipant(t *testing.T, token string, dir string, index int) *testParticipant {
	t.Helper()
	id, err := transport.NewIdentity()
	require.NoError(t, err)

	ep := transport.NewEndpoint(id, frostyrpc.ALPN)
	require.NoError(t, ep.Listen("127.0.0.1:0"))

	server := frostyrpc.NewServer(id.EndpointID(), token, ep.Addr(), 0)

	cfg, err := frostycfg.NewAt(filepath.Join(dir, "frosty-"+id.EndpointID().String()+".toml"), id)
	require.NoError(t, err)

	return &testParticipant{id: id, endpoint: ep, server: server, cfg: cfg}
}

func runAcceptLoop(ctx context.Context, p *testParticipant) {
	for {
		conn, err := p.endpoint.Accept(ctx)
		if err != nil {
			return
		}
		go p.server.Accept(ctx, conn)
	}
}

func makeDialer(self *testParticipant, registry map[transport.EndpointID]*testParticipant) Dialer {
	return func(ctx context.Context, addr string, want transport.EndpointID) (*transport.Conn, error) {
		return self.endpoint.Dial(ctx, addr, want)
	}
}

// runMesh wires up n participants sharing one coordinator and runs every
// Machine concurrently, returning each participant's Result in creation
// order (index 0 is the coordinator).
func runMesh(t *testing.T, n, tt int) []*Result {
	t.Helper()
	dir := t.TempDir()
	token := "hunter2"
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	participants := make([]*testParticipant, n)
	registry := make(map[transport.EndpointID]*testParticipant, n)
	for i := 0; i < n; i++ {
		p := newTestParticipant(t, token, dir, i)
		participants[i] = p
		registry[p.id.EndpointID()] = p
		go runAcceptLoop(ctx, p)
	}

	coordinatorID := participants[0].id.EndpointID()
	coordinatorAddr := participants[0].endpoint.Addr()

	results := make([]*Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := participants[i]
			m := New(p.cfg, p.server, p.id.EndpointID(), p.endpoint.Addr(), coordinatorID, coordinatorAddr, i == 0, token, n, tt, makeDialer(p, registry))
			results[i], errs[i] = m.Run(ctx)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "participant %d", i)
	}
	return results
}

func TestDKG3of3EndToEnd(t *testing.T) {
	results := runMesh(t, 3, 3)
	for i := 1; i < len(results); i++ {
		require.Equal(t, results[0].VerifyingKey, results[i].VerifyingKey, "verifying keys must match across all participants")
	}
	require.NotEqual(t, results[0].KeyShare.Share, results[1].KeyShare.Share)
}

func TestDKG3of2QuorumEndToEnd(t *testing.T) {
	results := runMesh(t, 3, 2)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		require.Equal(t, results[0].VerifyingKey, results[i].VerifyingKey)
	}
}

func TestDKGSingleShareEndToEnd(t *testing.T) {
	results := runMesh(t, 1, 1)
	require.Len(t, results, 1)
	require.NotEmpty(t, results[0].VerifyingKey)
}

// TestPart1CheckDetectsTamperedPeerView exercises spec.md §8's named
// "Part1Check catches divergence" scenario directly against the phase
// function, without running a full mesh: one peer's reported view of
// another sender's round-1 package is corrupted before Part1Check runs,
// and the phase must fail with ErrRound1Mismatch rather than proceed to
// Part2Build.
func TestPart1CheckDetectsTamperedPeerView(t *testing.T) {
	var selfEP, otherEP transport.EndpointID
	selfEP[0], otherEP[0] = 1, 2

	selfIdentifier := frost.DeriveIdentifier(selfEP)
	_, selfPkg, err := frost.GenerateRound1(selfIdentifier, 2, 2)
	require.NoError(t, err)

	otherIdentifier := frost.DeriveIdentifier(otherEP)
	_, otherPkg, err := frost.GenerateRound1(otherIdentifier, 2, 2)
	require.NoError(t, err)

	tampered := otherPkg
	tampered.ProofZ = new(big.Int).Add(otherPkg.ProofZ, big.NewInt(1))

	m := &Machine{
		selfID: selfEP,
		round1Views: map[transport.EndpointID]map[transport.EndpointID]frost.Round1Package{
			selfEP: {selfEP: selfPkg, otherEP: otherPkg},
			// otherEP's own reported view of itself disagrees with selfEP's view.
			otherEP: {selfEP: selfPkg, otherEP: tampered},
		},
	}

	_, err = m.runPart1Check(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRound1Mismatch)
}

func TestRetryExhaustsAfterFixedAttempts(t *testing.T) {
	attempts := 0
	boom := errors.New("boom")
	err := retry(5, func() error {
		attempts++
		return boom
	})
	require.Error(t, err)
	require.Equal(t, 5, attempts)
}
