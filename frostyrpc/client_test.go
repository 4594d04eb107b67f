package frostyrpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zignig/frosty/frost"
	"github.com/zignig/frosty/transport"
)

// dialedPair spins up a listening server endpoint and a client endpoint,
// wires an Accept loop onto the server's Server, and returns a Client
// dialed from the other side.
func dialedPair(t *testing.T, token string) (*Server, *Client) {
	t.Helper()
	ctx := context.Background()

	serverID, err := transport.NewIdentity()
	require.NoError(t, err)
	clientID, err := transport.NewIdentity()
	require.NoError(t, err)

	ep := transport.NewEndpoint(serverID, ALPN)
	require.NoError(t, ep.Listen("127.0.0.1:0"))

	s := NewServer(serverID.EndpointID(), token, ep.Addr(), 0)

	accepted := make(chan *transport.Conn, 1)
	go func() {
		conn, err := ep.Accept(ctx)
		if err == nil {
			accepted <- conn
		}
	}()

	clientEP := transport.NewEndpoint(clientID, ALPN)
	conn, err := clientEP.Dial(ctx, ep.Addr(), serverID.EndpointID())
	require.NoError(t, err)

	serverConn := <-accepted
	go s.Accept(ctx, serverConn)

	c, err := Remote(ctx, conn)
	require.NoError(t, err)
	return s, c
}

func TestRemoteAuthWrongTokenDeniesAndExcludesRoster(t *testing.T) {
	s, c := dialedPair(t, "hunter2")
	ctx := context.Background()

	err := c.Auth(ctx, "WRONG", "127.0.0.1:9999")
	require.Error(t, err)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, s.doPeerCount()) // only self; the bad caller was never admitted
}

func TestRemoteAuthAndPart1RoundTrip(t *testing.T) {
	_, c := dialedPair(t, "hunter2")
	ctx := context.Background()

	require.NoError(t, c.Auth(ctx, "hunter2", "127.0.0.1:9999"))

	var raw [32]byte
	raw[0] = 9
	id := frost.DeriveIdentifier(raw)
	_, pkg, err := frost.GenerateRound1(id, 1, 1)
	require.NoError(t, err)

	require.NoError(t, c.Part1Send(ctx, pkg))

	count, err := c.Part1Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	fetched, err := c.Part1Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, fetched, 1)
}

func TestRemotePart2FetchIsRestricted(t *testing.T) {
	_, c := dialedPair(t, "hunter2")
	ctx := context.Background()
	require.NoError(t, c.Auth(ctx, "hunter2", "127.0.0.1:9999"))

	_, err := c.Part2Fetch(ctx)
	require.ErrorIs(t, err, ErrRestricted)
}

func TestRemoteDuplicateAuthClosesConnection(t *testing.T) {
	_, c := dialedPair(t, "hunter2")
	ctx := context.Background()

	require.NoError(t, c.Auth(ctx, "hunter2", "127.0.0.1:9999"))
	err := c.Auth(ctx, "hunter2", "127.0.0.1:9999")
	require.Error(t, err, "a second Auth on an already-authed connection must be refused")

	_, err = c.Boop(ctx)
	require.Error(t, err, "the server closes the connection after a duplicate auth")
}

func TestRemoteBoopIncrements(t *testing.T) {
	_, c := dialedPair(t, "hunter2")
	ctx := context.Background()
	require.NoError(t, c.Auth(ctx, "hunter2", "127.0.0.1:9999"))

	first, err := c.Boop(ctx)
	require.NoError(t, err)
	second, err := c.Boop(ctx)
	require.NoError(t, err)
	require.Greater(t, second, first)
}
