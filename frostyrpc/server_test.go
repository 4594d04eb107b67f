package frostyrpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zignig/frosty/transport"
)

func newTestServer(t *testing.T) (*Server, transport.EndpointID) {
	t.Helper()
	id, err := transport.NewIdentity()
	require.NoError(t, err)
	s := NewServer(id.EndpointID(), "hunter2", "127.0.0.1:9000", 0)
	return s, id.EndpointID()
}

func TestLocalClientAuthAndRoster(t *testing.T) {
	s, selfID := newTestServer(t)
	c := Local(s)
	ctx := context.Background()

	require.NoError(t, c.Auth(ctx, "hunter2", "127.0.0.1:9000"))
	n, err := c.PeerCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n) // self is seeded into the roster at construction

	peers, err := c.Peers(ctx)
	require.NoError(t, err)
	ids := make([]transport.EndpointID, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.ID)
	}
	require.Contains(t, ids, selfID)
}

func TestLocalClientPart2FetchSucceeds(t *testing.T) {
	s, _ := newTestServer(t)
	c := Local(s)
	ctx := context.Background()
	require.NoError(t, c.Auth(ctx, "hunter2", "127.0.0.1:9000"))

	items, err := c.Part2Fetch(ctx)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestPart1SendLastWriteWins(t *testing.T) {
	s, _ := newTestServer(t)
	sender, err := transport.NewIdentity()
	require.NoError(t, err)

	s.doPart1Send(sender.EndpointID(), []byte("first"))
	s.doPart1Send(sender.EndpointID(), []byte("second"))

	stored := s.doPart1Fetch()
	require.Equal(t, []byte("second"), stored[sender.EndpointID()])
	require.Equal(t, 1, s.doPart1Count())
}

func TestDoPart2FetchRestrictsToLocalCaller(t *testing.T) {
	s, selfID := newTestServer(t)
	other, err := transport.NewIdentity()
	require.NoError(t, err)

	_, restricted := s.doPart2Fetch(other.EndpointID())
	require.True(t, restricted)

	_, restricted = s.doPart2Fetch(selfID)
	require.False(t, restricted)
}

func TestDoAuthExceedsMaxSharesButStillAdmits(t *testing.T) {
	id, err := transport.NewIdentity()
	require.NoError(t, err)
	s := NewServer(id.EndpointID(), "hunter2", "127.0.0.1:9000", 1) // self alone already fills max_shares=1

	caller, err := transport.NewIdentity()
	require.NoError(t, err)
	err = s.doAuth(caller.EndpointID(), "hunter2", "127.0.0.1:9001")
	require.NoError(t, err, "max_shares is a warning threshold, not a rejection")

	s.rosterMu.Lock()
	_, inRoster := s.roster[caller.EndpointID()]
	s.rosterMu.Unlock()
	require.True(t, inRoster)
}

func TestDoAuthDeniesWrongToken(t *testing.T) {
	s, _ := newTestServer(t)
	caller, err := transport.NewIdentity()
	require.NoError(t, err)

	err = s.doAuth(caller.EndpointID(), "WRONG", "127.0.0.1:9001")
	require.Error(t, err)

	s.rosterMu.Lock()
	_, inRoster := s.roster[caller.EndpointID()]
	s.rosterMu.Unlock()
	require.False(t, inRoster)
}
