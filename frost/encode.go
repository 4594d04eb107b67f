package frost

import (
	"fmt"
	"math/big"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Canonical wire encodings for the package types that cross process
// boundaries. These live next to the math rather than in frostyrpc so
// that Part1Check's byte-equality requirement (spec.md §4 Part1Check:
// "must be byte-identical across every participant's view") and the
// final config-store encoding share one definition of "canonical bytes".

const (
	fieldR1Sender     protowire.Number = 1
	fieldR1Commitment protowire.Number = 2
	fieldR1ProofR     protowire.Number = 3
	fieldR1ProofZ     protowire.Number = 4

	fieldR2Sender    protowire.Number = 1
	fieldR2Recipient protowire.Number = 2
	fieldR2Share     protowire.Number = 3

	fieldKeyShareIdentifier protowire.Number = 1
	fieldKeyShareValue      protowire.Number = 2

	fieldPublicShareEntry protowire.Number = 1
)

func pointBytes(p Point) []byte {
	out := make([]byte, 64)
	xb, yb := p.X.Bytes(), p.Y.Bytes()
	copy(out[32-len(xb):32], xb)
	copy(out[64-len(yb):64], yb)
	return out
}

func pointFromBytes(b []byte) (Point, error) {
	if len(b) != 64 {
		return Point{}, fmt.Errorf("frost: point must be 64 bytes, got %d", len(b))
	}
	return Point{
		X: new(big.Int).SetBytes(b[:32]),
		Y: new(big.Int).SetBytes(b[32:]),
	}, nil
}

// Bytes serialises a round-1 public package to its canonical form.
func (pkg Round1Package) Bytes() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldR1Sender, protowire.BytesType)
	b = protowire.AppendBytes(b, pkg.Sender.Bytes())
	for _, c := range pkg.Commitment {
		b = protowire.AppendTag(b, fieldR1Commitment, protowire.BytesType)
		b = protowire.AppendBytes(b, pointBytes(c))
	}
	b = protowire.AppendTag(b, fieldR1ProofR, protowire.BytesType)
	b = protowire.AppendBytes(b, pointBytes(pkg.ProofR))
	b = protowire.AppendTag(b, fieldR1ProofZ, protowire.BytesType)
	b = protowire.AppendBytes(b, pkg.ProofZ.Bytes())
	return b
}

// ParseRound1Package decodes the canonical form produced by Bytes.
func ParseRound1Package(raw []byte) (Round1Package, error) {
	var pkg Round1Package
	var sawSender, sawProofR, sawProofZ bool
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return Round1Package{}, fmt.Errorf("frost: malformed round1 package tag")
		}
		raw = raw[n:]
		if typ != protowire.BytesType {
			return Round1Package{}, fmt.Errorf("frost: unexpected wire type in round1 package")
		}
		v, n := protowire.ConsumeBytes(raw)
		if n < 0 {
			return Round1Package{}, fmt.Errorf("frost: malformed round1 package field %d", num)
		}
		raw = raw[n:]
		switch num {
		case fieldR1Sender:
			pkg.Sender = IdentifierFromBytes(v)
			sawSender = true
		case fieldR1Commitment:
			pt, err := pointFromBytes(v)
			if err != nil {
				return Round1Package{}, err
			}
			pkg.Commitment = append(pkg.Commitment, pt)
		case fieldR1ProofR:
			pt, err := pointFromBytes(v)
			if err != nil {
				return Round1Package{}, err
			}
			pkg.ProofR = pt
			sawProofR = true
		case fieldR1ProofZ:
			pkg.ProofZ = new(big.Int).SetBytes(v)
			sawProofZ = true
		default:
			return Round1Package{}, fmt.Errorf("frost: unexpected round1 field %d", num)
		}
	}
	if !sawSender || !sawProofR || !sawProofZ {
		return Round1Package{}, fmt.Errorf("frost: round1 package missing required field")
	}
	return pkg, nil
}

// Bytes serialises a round-2 confidential package to its canonical form.
func (pkg Round2Package) Bytes() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldR2Sender, protowire.BytesType)
	b = protowire.AppendBytes(b, pkg.Sender.Bytes())
	b = protowire.AppendTag(b, fieldR2Recipient, protowire.BytesType)
	b = protowire.AppendBytes(b, pkg.Recipient.Bytes())
	b = protowire.AppendTag(b, fieldR2Share, protowire.BytesType)
	b = protowire.AppendBytes(b, pkg.Share.Bytes())
	return b
}

// ParseRound2Package decodes the canonical form produced by Bytes.
func ParseRound2Package(raw []byte) (Round2Package, error) {
	var pkg Round2Package
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 || typ != protowire.BytesType {
			return Round2Package{}, fmt.Errorf("frost: malformed round2 package tag")
		}
		raw = raw[n:]
		v, n := protowire.ConsumeBytes(raw)
		if n < 0 {
			return Round2Package{}, fmt.Errorf("frost: malformed round2 package field")
		}
		raw = raw[n:]
		switch num {
		case fieldR2Sender:
			pkg.Sender = IdentifierFromBytes(v)
		case fieldR2Recipient:
			pkg.Recipient = IdentifierFromBytes(v)
		case fieldR2Share:
			pkg.Share = new(big.Int).SetBytes(v)
		default:
			return Round2Package{}, fmt.Errorf("frost: unexpected round2 field %d", num)
		}
	}
	return pkg, nil
}

// Bytes serialises a key share to the canonical form written into
// frosty.toml's key_package field.
func (ks KeyShare) Bytes() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldKeyShareIdentifier, protowire.BytesType)
	b = protowire.AppendBytes(b, ks.Identifier.Bytes())
	b = protowire.AppendTag(b, fieldKeyShareValue, protowire.BytesType)
	b = protowire.AppendBytes(b, ks.Share.Bytes())
	return b
}

// ParseKeyShare decodes the canonical form produced by Bytes.
func ParseKeyShare(raw []byte) (KeyShare, error) {
	var ks KeyShare
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 || typ != protowire.BytesType {
			return KeyShare{}, fmt.Errorf("frost: malformed key share tag")
		}
		raw = raw[n:]
		v, n := protowire.ConsumeBytes(raw)
		if n < 0 {
			return KeyShare{}, fmt.Errorf("frost: malformed key share field")
		}
		raw = raw[n:]
		switch num {
		case fieldKeyShareIdentifier:
			ks.Identifier = IdentifierFromBytes(v)
		case fieldKeyShareValue:
			ks.Share = new(big.Int).SetBytes(v)
		default:
			return KeyShare{}, fmt.Errorf("frost: unexpected key share field %d", num)
		}
	}
	return ks, nil
}

// Bytes serialises the full n-way verification table written into
// frosty.toml's public_package field: one entry per participant
// identifier, each carrying its Feldman-verification point. Entries are
// written in ascending identifier-key order.
func (ps PublicShare) Bytes() []byte {
	keys := make([]string, 0, len(ps.Verification))
	for key := range ps.Verification {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b []byte
	for _, key := range keys {
		pt := ps.Verification[key]
		var entry []byte
		entry = protowire.AppendBytes(entry, []byte(key))
		entry = protowire.AppendBytes(entry, pointBytes(pt))
		b = protowire.AppendTag(b, fieldPublicShareEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// ParsePublicShare decodes the canonical form produced by Bytes.
func ParsePublicShare(raw []byte) (PublicShare, error) {
	ps := PublicShare{Verification: make(map[string]Point)}
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 || typ != protowire.BytesType || num != fieldPublicShareEntry {
			return PublicShare{}, fmt.Errorf("frost: malformed public share tag")
		}
		raw = raw[n:]
		entry, n := protowire.ConsumeBytes(raw)
		if n < 0 {
			return PublicShare{}, fmt.Errorf("frost: malformed public share entry")
		}
		raw = raw[n:]

		key, n := protowire.ConsumeBytes(entry)
		if n < 0 {
			return PublicShare{}, fmt.Errorf("frost: malformed public share key")
		}
		entry = entry[n:]
		ptBytes, n := protowire.ConsumeBytes(entry)
		if n < 0 {
			return PublicShare{}, fmt.Errorf("frost: malformed public share point")
		}
		pt, err := pointFromBytes(ptBytes)
		if err != nil {
			return PublicShare{}, err
		}
		ps.Verification[string(key)] = pt
	}
	return ps, nil
}
