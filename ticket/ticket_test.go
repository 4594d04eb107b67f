package ticket

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	gobase32 "github.com/multiformats/go-base32"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zignig/frosty/transport"
)

func testCoordinator() transport.EndpointID {
	var id transport.EndpointID
	for i := range id {
		id[i] = byte(i)
	}
	return id
}

func TestTicketRoundTrip(t *testing.T) {
	want, err := New(testCoordinator(), "hunter2", 5, 3)
	require.NoError(t, err)

	serialized, err := want.Serialize()
	require.NoError(t, err)

	got, err := Parse(serialized)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestTicketParseCaseInsensitive(t *testing.T) {
	want, err := New(testCoordinator(), "hunter2", 5, 3)
	require.NoError(t, err)

	serialized, err := want.Serialize()
	require.NoError(t, err)

	got, err := Parse(strings.ToUpper(serialized))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestTicketParseRejectsWrongKindTag(t *testing.T) {
	raw := rawWireForm(t, "nope", testCoordinator(), "hunter2", 5, 3)
	_, err := Parse(encodeWire(raw))
	require.Error(t, err)
}

func TestTicketParseRejectsTrailingBytes(t *testing.T) {
	want, err := New(testCoordinator(), "hunter2", 5, 3)
	require.NoError(t, err)
	serialized, err := want.Serialize()
	require.NoError(t, err)

	raw, err := gobase32.RawStdEncoding.DecodeString(strings.ToUpper(serialized))
	require.NoError(t, err)
	raw = append(raw, 0xFF)

	_, err = Parse(strings.ToLower(gobase32.RawStdEncoding.EncodeToString(raw)))
	require.Error(t, err)
}

func TestNewRejectsMinExceedingMax(t *testing.T) {
	_, err := New(testCoordinator(), "hunter2", 2, 3)
	require.Error(t, err)
}

func TestParseRejectsMinExceedingMax(t *testing.T) {
	// Built directly from protowire, bypassing New's own validation, so
	// it's Parse's re-validation of min<=max (spec.md §4.1) under test.
	raw := rawWireForm(t, kind, testCoordinator(), "hunter2", 2, 3)
	_, err := Parse(encodeWire(raw))
	require.Error(t, err)
}

// rawWireForm builds the same wire layout Serialize produces, but lets
// the test pick an arbitrary kind tag and arbitrary n/t values that
// New's validation would otherwise reject.
func rawWireForm(t *testing.T, useKind string, coordinator transport.EndpointID, token string, maxShares, minShares uint16) []byte {
	t.Helper()
	var body []byte
	body = protowire.AppendTag(body, fieldCoordinator, protowire.BytesType)
	body = protowire.AppendBytes(body, coordinator[:])
	body = protowire.AppendTag(body, fieldToken, protowire.BytesType)
	body = protowire.AppendBytes(body, []byte(token))
	body = protowire.AppendTag(body, fieldMaxShares, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(maxShares))
	body = protowire.AppendTag(body, fieldMinShares, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(minShares))

	var wire []byte
	wire = protowire.AppendVarint(wire, uint64(len(useKind)))
	wire = append(wire, useKind...)
	wire = append(wire, body...)
	return wire
}

func encodeWire(raw []byte) string {
	return strings.ToLower(gobase32.RawStdEncoding.EncodeToString(raw))
}
