// Package ticket implements the frosty bootstrap ticket: the token a
// coordinator issues and a joiner consumes to identify it, carrying the
// coordinator's endpoint id, the shared auth token, and the n/t
// parameters (spec.md §4.1).
package ticket

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	gobase32 "github.com/multiformats/go-base32"

	"github.com/zignig/frosty/transport"
)

// kind is the typed tag every serialized ticket is wrapped with, so a
// frosty ticket can never be silently parsed as some other project's
// ticket type.
const kind = "frosty"

// Ticket carries what a joiner needs to identify and authenticate to the
// coordinator (spec.md §3, "Ticket"). It holds no network address; the
// coordinator's dial address reaches the joiner separately.
type Ticket struct {
	Coordinator transport.EndpointID
	Token       string
	MaxShares   uint16
	MinShares   uint16
}

// New constructs a ticket, enforcing 1 <= MinShares <= MaxShares <= 65535.
func New(coordinator transport.EndpointID, token string, maxShares, minShares uint16) (Ticket, error) {
	t := Ticket{Coordinator: coordinator, Token: token, MaxShares: maxShares, MinShares: minShares}
	if err := t.validate(); err != nil {
		return Ticket{}, err
	}
	return t, nil
}

func (t Ticket) validate() error {
	if t.MinShares < 1 {
		return fmt.Errorf("ticket: min_shares must be at least 1")
	}
	if t.MinShares > t.MaxShares {
		return fmt.Errorf("ticket: min_shares (%d) exceeds max_shares (%d)", t.MinShares, t.MaxShares)
	}
	return nil
}

const (
	fieldCoordinator protowire.Number = 1
	fieldToken       protowire.Number = 2
	fieldMaxShares   protowire.Number = 3
	fieldMinShares   protowire.Number = 4
)

// Serialize produces the bit-exact wire form of spec.md §4.1: a compact
// deterministic encoding (hand-assembled protobuf wire format, field
// numbers in ascending order — no .proto/codegen needed for four fixed
// fields), wrapped with the "frosty" kind tag, printed as lowercase
// base32 without padding.
func (t Ticket) Serialize() (string, error) {
	if err := t.validate(); err != nil {
		return "", err
	}
	var body []byte
	body = protowire.AppendTag(body, fieldCoordinator, protowire.BytesType)
	body = protowire.AppendBytes(body, t.Coordinator[:])
	body = protowire.AppendTag(body, fieldToken, protowire.BytesType)
	body = protowire.AppendBytes(body, []byte(t.Token))
	body = protowire.AppendTag(body, fieldMaxShares, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(t.MaxShares))
	body = protowire.AppendTag(body, fieldMinShares, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(t.MinShares))

	var wire []byte
	wire = protowire.AppendVarint(wire, uint64(len(kind)))
	wire = append(wire, kind...)
	wire = append(wire, body...)

	return strings.ToLower(gobase32.RawStdEncoding.EncodeToString(wire)), nil
}

// Parse reverses Serialize, rejecting a wrong kind tag, trailing bytes,
// or min_shares > max_shares (spec.md §4.1).
func Parse(s string) (Ticket, error) {
	raw, err := gobase32.RawStdEncoding.DecodeString(strings.ToUpper(s))
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket: bad base32 encoding: %w", err)
	}

	kindLen, n := protowire.ConsumeVarint(raw)
	if n < 0 {
		return Ticket{}, fmt.Errorf("ticket: malformed kind-tag length")
	}
	raw = raw[n:]
	if uint64(len(raw)) < kindLen {
		return Ticket{}, fmt.Errorf("ticket: truncated kind tag")
	}
	gotKind := string(raw[:kindLen])
	raw = raw[kindLen:]
	if gotKind != kind {
		return Ticket{}, fmt.Errorf("ticket: wrong kind tag %q, want %q", gotKind, kind)
	}

	var t Ticket
	var sawCoordinator, sawToken, sawMax, sawMin bool
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return Ticket{}, fmt.Errorf("ticket: malformed field tag")
		}
		raw = raw[n:]

		switch num {
		case fieldCoordinator:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 || typ != protowire.BytesType || len(v) != len(t.Coordinator) {
				return Ticket{}, fmt.Errorf("ticket: malformed coordinator field")
			}
			copy(t.Coordinator[:], v)
			raw = raw[n:]
			sawCoordinator = true
		case fieldToken:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 || typ != protowire.BytesType {
				return Ticket{}, fmt.Errorf("ticket: malformed token field")
			}
			t.Token = string(v)
			raw = raw[n:]
			sawToken = true
		case fieldMaxShares:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 || typ != protowire.VarintType || v > 65535 {
				return Ticket{}, fmt.Errorf("ticket: malformed max_shares field")
			}
			t.MaxShares = uint16(v)
			raw = raw[n:]
			sawMax = true
		case fieldMinShares:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 || typ != protowire.VarintType || v > 65535 {
				return Ticket{}, fmt.Errorf("ticket: malformed min_shares field")
			}
			t.MinShares = uint16(v)
			raw = raw[n:]
			sawMin = true
		default:
			return Ticket{}, fmt.Errorf("ticket: unexpected field %d", num)
		}
	}
	if !sawCoordinator || !sawToken || !sawMax || !sawMin {
		return Ticket{}, fmt.Errorf("ticket: missing required field")
	}
	if err := t.validate(); err != nil {
		return Ticket{}, err
	}
	return t, nil
}
