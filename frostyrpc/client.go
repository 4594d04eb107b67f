package frostyrpc

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/zignig/frosty/frost"
	"github.com/zignig/frosty/transport"
)

// Client is the single call surface spec.md §4.3 asks for: the same
// method set works whether the server lives in this process (Local) or
// across a transport.Conn (Remote), so dkg.Machine never needs to know
// which one it was handed.
type Client struct {
	// remote mode
	conn   *transport.Conn
	stream io.ReadWriteCloser
	r      *bufio.Reader

	// local mode
	local    *Server
	callerID transport.EndpointID
}

// Local builds a client that calls straight into a Server's dispatch
// methods, bypassing the wire entirely. The resulting client is
// authenticated as the server's own identity, which is what lets the
// coordinator's own Part2Fetch succeed where every remote peer's would
// be refused (spec.md §4.2).
func Local(s *Server) *Client {
	return &Client{local: s, callerID: s.ID()}
}

// Remote builds a client that speaks the wire protocol over an already
// established transport.Conn.
func Remote(ctx context.Context, conn *transport.Conn) (*Client, error) {
	stream, err := conn.Stream(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("frostyrpc: open client stream: %w", err)
	}
	return &Client{
		conn:     conn,
		stream:   stream,
		r:        bufio.NewReader(stream),
		callerID: conn.RemoteID(), // the server's id; the remote call paths do not read it
	}, nil
}

func (c *Client) isLocal() bool { return c.local != nil }

func (c *Client) call(t msgType, body []byte) ([]byte, error) {
	frame := append([]byte{byte(t)}, body...)
	if err := writeFrame(c.stream, frame); err != nil {
		return nil, err
	}
	return readFrame(c.r)
}

// Auth sends the shared token and this client's own dial-back address,
// and blocks until the server accepts or refuses it.
func (c *Client) Auth(ctx context.Context, token, selfAddr string) error {
	if c.isLocal() {
		return c.local.doAuth(c.callerID, token, selfAddr)
	}
	reply, err := c.call(msgAuth, encodeAuthRequest(token, selfAddr))
	if err != nil {
		return err
	}
	if len(reply) == 0 || reply[0] != 0 {
		reason := "denied"
		if len(reply) > 1 {
			reason = string(reply[1:])
		}
		return fmt.Errorf("frostyrpc: auth refused: %s", reason)
	}
	return nil
}

// Peers returns the current roster (spec.md §4.3).
func (c *Client) Peers(ctx context.Context) ([]PeerInfo, error) {
	if c.isLocal() {
		return c.local.doPeers(), nil
	}
	if err := writeFrame(c.stream, []byte{byte(msgPeers)}); err != nil {
		return nil, err
	}
	var out []PeerInfo
	for {
		frame, err := readFrame(c.r)
		if err != nil {
			return nil, err
		}
		if len(frame) == 0 {
			return out, nil
		}
		info, err := decodePeerInfo(frame)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
}

// PeerCount returns len(Peers()) without transferring the whole roster.
func (c *Client) PeerCount(ctx context.Context) (int, error) {
	if c.isLocal() {
		return c.local.doPeerCount(), nil
	}
	reply, err := c.call(msgPeerCount, nil)
	if err != nil {
		return 0, err
	}
	n, err := decodeVarintFrame(reply)
	return int(n), err
}

// Boop is the liveness probe of spec.md §4.3: each call returns a
// monotonically increasing counter.
func (c *Client) Boop(ctx context.Context) (int64, error) {
	if c.isLocal() {
		return c.local.doBoop(), nil
	}
	reply, err := c.call(msgBoop, nil)
	if err != nil {
		return 0, err
	}
	n, err := decodeVarintFrame(reply)
	return int64(n), err
}

// Part1Send publishes this participant's round-1 package to the server.
func (c *Client) Part1Send(ctx context.Context, pkg frost.Round1Package) error {
	raw := encodeRound1Package(pkg)
	if c.isLocal() {
		c.local.doPart1Send(c.callerID, raw)
		return nil
	}
	_, err := c.call(msgPart1Send, raw)
	return err
}

// Part1Count reports how many round-1 packages the server has received
// so far, used to decide when the mesh is ready for Part1Fetch.
func (c *Client) Part1Count(ctx context.Context) (int, error) {
	if c.isLocal() {
		return c.local.doPart1Count(), nil
	}
	reply, err := c.call(msgPart1Count, nil)
	if err != nil {
		return 0, err
	}
	n, err := decodeVarintFrame(reply)
	return int(n), err
}

// Part1Fetch retrieves every round-1 package the server holds, keyed by
// sending peer.
func (c *Client) Part1Fetch(ctx context.Context) (map[transport.EndpointID]frost.Round1Package, error) {
	var raws map[transport.EndpointID][]byte
	var err error
	if c.isLocal() {
		raws = c.local.doPart1Fetch()
	} else {
		raws, err = c.fetchIndexed(msgPart1Fetch)
	}
	if err != nil {
		return nil, err
	}
	out := make(map[transport.EndpointID]frost.Round1Package, len(raws))
	for id, raw := range raws {
		pkg, err := decodeRound1Package(raw)
		if err != nil {
			return nil, fmt.Errorf("frostyrpc: decode round1 package from %s: %w", id, err)
		}
		out[id] = pkg
	}
	return out, nil
}

// Part2Send delivers a round-2 package addressed to this server's own
// participant.
func (c *Client) Part2Send(ctx context.Context, pkg frost.Round2Package) error {
	raw := encodeRound2Package(pkg)
	if c.isLocal() {
		c.local.doPart2Send(c.callerID, raw)
		return nil
	}
	_, err := c.call(msgPart2Send, raw)
	return err
}

// Part2Fetch retrieves the round-2 packages addressed to this server's
// participant. Only the server's own hosting process may call this
// successfully (spec.md §4.2); a remote caller gets ErrRestricted.
func (c *Client) Part2Fetch(ctx context.Context) (map[transport.EndpointID]frost.Round2Package, error) {
	if c.isLocal() {
		items, restricted := c.local.doPart2Fetch(c.callerID)
		if restricted {
			return nil, ErrRestricted
		}
		out := make(map[transport.EndpointID]frost.Round2Package, len(items))
		for id, raw := range items {
			pkg, err := decodeRound2Package(raw)
			if err != nil {
				return nil, err
			}
			out[id] = pkg
		}
		return out, nil
	}

	if err := writeFrame(c.stream, []byte{byte(msgPart2Fetch)}); err != nil {
		return nil, err
	}
	out := make(map[transport.EndpointID]frost.Round2Package)
	for {
		frame, err := readFrame(c.r)
		if err != nil {
			return nil, err
		}
		if len(frame) == 0 {
			return out, nil
		}
		if frame[0] == 1 {
			return nil, fmt.Errorf("%w: %s", ErrRestricted, string(frame[1:]))
		}
		id, err := endpointIDFromBytes(frame[1:33])
		if err != nil {
			return nil, err
		}
		pkg, err := decodeRound2Package(frame[33:])
		if err != nil {
			return nil, err
		}
		out[id] = pkg
	}
}

// fetchIndexed drains a streaming reply of (EndpointID || payload)
// frames terminated by an empty frame (spec.md §6).
func (c *Client) fetchIndexed(t msgType) (map[transport.EndpointID][]byte, error) {
	if err := writeFrame(c.stream, []byte{byte(t)}); err != nil {
		return nil, err
	}
	out := make(map[transport.EndpointID][]byte)
	for {
		frame, err := readFrame(c.r)
		if err != nil {
			return nil, err
		}
		if len(frame) == 0 {
			return out, nil
		}
		if len(frame) < 32 {
			return nil, fmt.Errorf("frostyrpc: short indexed frame")
		}
		id, err := endpointIDFromBytes(frame[:32])
		if err != nil {
			return nil, err
		}
		out[id] = append([]byte(nil), frame[32:]...)
	}
}

func decodeVarintFrame(frame []byte) (uint64, error) {
	var result uint64
	var shift uint
	for _, b := range frame {
		result |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return result, nil
		}
		shift += 7
	}
	return 0, fmt.Errorf("frostyrpc: truncated varint frame")
}
