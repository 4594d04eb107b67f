// Package frostyrpc is the authenticated RPC mesh spec.md §4.2 and §4.3
// describe: a fixed request set carried over a single duplex stream per
// connection, with FrostyServer holding the mesh-wide state and
// FrostyClient giving identical local/remote call surfaces.
package frostyrpc

import (
	"bufio"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zignig/frosty/frost"
	"github.com/zignig/frosty/transport"
)

// ALPN is the well-known protocol label this RPC negotiates over QUIC
// (spec.md §6).
const ALPN = "frosty-api/0"

// msgType tags the first byte of every request frame.
type msgType byte

const (
	msgAuth msgType = iota + 1
	msgPeers
	msgPeerCount
	msgBoop
	msgPart1Send
	msgPart1Count
	msgPart1Fetch
	msgPart2Send
	msgPart2Fetch
)

// writeFrame writes a length-prefixed frame: varint(len(payload)) ||
// payload. This is the "length-framed typed messages" contract of
// spec.md §6.
func writeFrame(w io.Writer, payload []byte) error {
	var lenPrefix []byte
	lenPrefix = protowire.AppendVarint(lenPrefix, uint64(len(payload)))
	if _, err := w.Write(lenPrefix); err != nil {
		return fmt.Errorf("frostyrpc: write frame length: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("frostyrpc: write frame payload: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame from a buffered reader (a
// plain io.Reader can't be rewound if ConsumeVarint needs more bytes
// than are available in one Read).
func readFrame(r *bufio.Reader) ([]byte, error) {
	length, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("frostyrpc: read frame payload: %w", err)
	}
	return buf, nil
}

func readVarint(r *bufio.Reader) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, fmt.Errorf("frostyrpc: varint too long")
		}
	}
}

// encodeRound1Package/decodeRound1Package and their round-2 counterparts
// delegate to frost's canonical encoding (spec.md §3: round-1 packages
// "must be byte-identical across every participant's view" — Part1Check
// compares exactly these bytes, so the wire form and the comparison form
// must be the same function).
func encodeRound1Package(pkg frost.Round1Package) []byte { return pkg.Bytes() }

func decodeRound1Package(raw []byte) (frost.Round1Package, error) {
	return frost.ParseRound1Package(raw)
}

func encodeRound2Package(pkg frost.Round2Package) []byte { return pkg.Bytes() }

func decodeRound2Package(raw []byte) (frost.Round2Package, error) {
	return frost.ParseRound2Package(raw)
}

func endpointIDBytes(id transport.EndpointID) []byte { return id[:] }

func endpointIDFromBytes(b []byte) (transport.EndpointID, error) {
	var id transport.EndpointID
	if len(b) != len(id) {
		return id, fmt.Errorf("frostyrpc: endpoint id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// writeVarintFrame writes a frame whose payload is a single varint, used
// for PeerCount and Boop replies.
func writeVarintFrame(w io.Writer, v uint64) error {
	var b []byte
	b = protowire.AppendVarint(b, v)
	return writeFrame(w, b)
}

// encodeAuthReply marshals the Auth reply: a single status byte (0 = ok,
// 1 = denied) followed by a human-readable reason on denial.
func encodeAuthReply(authErr error) []byte {
	if authErr == nil {
		return []byte{0}
	}
	return append([]byte{1}, []byte(authErr.Error())...)
}

// encodeFetchOK/encodeFetchErr tag each item of a Part2Fetch reply
// stream: 0 = a (sender, package) pair follows, 1 = the fetch as a whole
// was refused (spec.md §4.2's local-caller-only restriction).
func encodeFetchOK(sender transport.EndpointID, raw []byte) []byte {
	out := append([]byte{0}, endpointIDBytes(sender)...)
	return append(out, raw...)
}

func encodeFetchErr(reason string) []byte {
	return append([]byte{1}, []byte(reason)...)
}

// PeerInfo is one roster entry as reported by Peers: a participant's
// identifier plus the dial address its own Auth call registered. The
// spec's abstract "identifier -> display tag" roster mapping (spec.md
// §3) is concretized here as "identifier -> dial address", since this
// transport (unlike the original's content-addressed discovery layer,
// out of scope per spec.md §1) needs an explicit address to reconnect.
type PeerInfo struct {
	ID   transport.EndpointID
	Addr string
}

func encodePeerInfo(p PeerInfo) []byte {
	return append(endpointIDBytes(p.ID), []byte(p.Addr)...)
}

func decodePeerInfo(b []byte) (PeerInfo, error) {
	if len(b) < 32 {
		return PeerInfo{}, fmt.Errorf("frostyrpc: short peer info frame")
	}
	id, err := endpointIDFromBytes(b[:32])
	if err != nil {
		return PeerInfo{}, err
	}
	return PeerInfo{ID: id, Addr: string(b[32:])}, nil
}

// encodeAuthRequest/decodeAuthRequest carry the shared token and the
// caller's own dial-back address in one Auth request frame.
func encodeAuthRequest(token, addr string) []byte {
	var b []byte
	b = protowire.AppendVarint(b, uint64(len(token)))
	b = append(b, token...)
	b = append(b, addr...)
	return b
}

func decodeAuthRequest(raw []byte) (token, addr string, err error) {
	tokenLen, n := protowire.ConsumeVarint(raw)
	if n < 0 || uint64(len(raw)-n) < tokenLen {
		return "", "", fmt.Errorf("frostyrpc: malformed auth request")
	}
	raw = raw[n:]
	return string(raw[:tokenLen]), string(raw[tokenLen:]), nil
}
