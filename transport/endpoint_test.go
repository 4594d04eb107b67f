package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDialAcceptRoundTrip(t *testing.T) {
	serverID, err := NewIdentity()
	require.NoError(t, err)
	clientID, err := NewIdentity()
	require.NoError(t, err)

	server := NewEndpoint(serverID, "frosty-api/0")
	require.NoError(t, server.Listen("127.0.0.1:0"))

	accepted := make(chan *Conn, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn, err := server.Accept(ctx)
		require.NoError(t, err)
		accepted <- conn
	}()

	client := NewEndpoint(clientID, "frosty-api/0")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clientConn, err := client.Dial(ctx, server.Addr(), server.ID())
	require.NoError(t, err)
	require.Equal(t, server.ID(), clientConn.RemoteID())

	serverConn := <-accepted
	require.Equal(t, clientID.EndpointID(), serverConn.RemoteID())
}

func TestDialRejectsIdentityMismatch(t *testing.T) {
	serverID, err := NewIdentity()
	require.NoError(t, err)
	clientID, err := NewIdentity()
	require.NoError(t, err)
	wrongID, err := NewIdentity()
	require.NoError(t, err)

	server := NewEndpoint(serverID, "frosty-api/0")
	require.NoError(t, server.Listen("127.0.0.1:0"))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = server.Accept(ctx)
	}()

	client := NewEndpoint(clientID, "frosty-api/0")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = client.Dial(ctx, server.Addr(), wrongID.EndpointID())
	require.Error(t, err)
}
