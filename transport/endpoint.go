// Package transport supplies the connection-oriented, endpoint-identified
// transport that spec.md §1 treats as an external collaborator: reliable,
// in-order, authenticated point-to-point connections, with graceful close
// carrying an application error code (spec.md §4.2). It is built on QUIC
// (github.com/quic-go/quic-go); a connection's remote EndpointID comes
// directly from its self-signed Ed25519 certificate's public key, so no
// separate identity handshake is needed above this layer.
package transport

import (
	"context"
	"fmt"

	"github.com/quic-go/quic-go"

	"github.com/zignig/frosty/internal/obs"
)

var log = obs.Logger("transport")

// Endpoint is a single participant's network presence: one listening UDP
// socket, one long-term identity, one ALPN. Each Dial opens its own UDP
// socket.
type Endpoint struct {
	id       Identity
	alpn     string
	listener *quic.Listener
}

// NewEndpoint builds a transport endpoint bound to id, ready to Listen or
// Dial under the given ALPN (spec.md §6, "frosty-api/0").
func NewEndpoint(id Identity, alpn string) *Endpoint {
	return &Endpoint{id: id, alpn: alpn}
}

// ID returns this endpoint's own identifier.
func (e *Endpoint) ID() EndpointID { return e.id.EndpointID() }

// Listen starts accepting QUIC connections on addr (host:port, or
// ":0" for an ephemeral port).
func (e *Endpoint) Listen(addr string) error {
	tlsConf, err := e.id.tlsConfig(e.alpn)
	if err != nil {
		return err
	}
	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{
		KeepAlivePeriod: 0,
		MaxIdleTimeout:  0,
	})
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	e.listener = ln
	return nil
}

// Addr returns the address this endpoint is listening on.
func (e *Endpoint) Addr() string {
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Accept blocks for the next incoming, authenticated connection.
func (e *Endpoint) Accept(ctx context.Context) (*Conn, error) {
	if e.listener == nil {
		return nil, fmt.Errorf("endpoint is not listening")
	}
	qc, err := e.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := wrapConn(qc)
	if err != nil {
		return nil, err
	}
	log.Debugf("accepted connection from %s", conn.RemoteID())
	return conn, nil
}

// Dial opens a connection to addr, verifying the presented certificate's
// public key matches want (spec.md §4.3, "the peer's long-term public key
// is known from the stream"). A mismatch is a TransportConnect failure.
func (e *Endpoint) Dial(ctx context.Context, addr string, want EndpointID) (*Conn, error) {
	tlsConf, err := e.id.tlsConfig(e.alpn)
	if err != nil {
		return nil, err
	}
	qc, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	conn, err := wrapConn(qc)
	if err != nil {
		return nil, err
	}
	if conn.RemoteID() != want {
		conn.Close(1, "unexpected peer identity")
		return nil, fmt.Errorf("dial %s: peer identity mismatch (got %s, want %s)", addr, conn.RemoteID(), want)
	}
	return conn, nil
}

// Conn is one authenticated, connection-oriented link to a peer, carrying
// the single duplex stream spec.md §4.2 specifies.
type Conn struct {
	qc       quic.Connection
	remote   EndpointID
	stream   quic.Stream
	streamed bool
}

func wrapConn(qc quic.Connection) (*Conn, error) {
	state := qc.ConnectionState().TLS
	remote, err := peerEndpointID(state.PeerCertificates)
	if err != nil {
		qc.CloseWithError(1, "unauthed")
		return nil, fmt.Errorf("identify peer: %w", err)
	}
	return &Conn{qc: qc, remote: remote}, nil
}

// RemoteID is the authenticated EndpointID of the peer on the other end.
func (c *Conn) RemoteID() EndpointID { return c.remote }

// Stream returns the single duplex stream for this connection, opening
// (dialer side) or accepting (listener side) it lazily on first use.
func (c *Conn) Stream(ctx context.Context, dialer bool) (quic.Stream, error) {
	if c.streamed {
		return c.stream, nil
	}
	var s quic.Stream
	var err error
	if dialer {
		s, err = c.qc.OpenStreamSync(ctx)
	} else {
		s, err = c.qc.AcceptStream(ctx)
	}
	if err != nil {
		return nil, err
	}
	c.stream = s
	c.streamed = true
	return s, nil
}

// Close closes the connection with the given application error code and
// human-readable reason (spec.md §4.2's "close code 1" accept-side
// transitions).
func (c *Conn) Close(code uint64, reason string) {
	c.qc.CloseWithError(quic.ApplicationErrorCode(code), reason)
}

// Context is done when the connection closes, for callers that want to
// detect peer disconnects.
func (c *Conn) Context() context.Context { return c.qc.Context() }
