package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// EndpointID is a participant's long-term identifier: the raw bytes of
// its Ed25519 public key (spec.md §3, "32-byte public identifier derived
// from it"). It doubles as the TLS certificate's public key, so the
// transport hands out an authenticated EndpointID for every accepted
// connection with no separate handshake step.
type EndpointID [32]byte

func (id EndpointID) String() string {
	return fmt.Sprintf("%x", id[:8])
}

// Identity is a participant's long-lived signing keypair.
type Identity struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// NewIdentity generates a fresh Ed25519 keypair.
func NewIdentity() (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("generate identity: %w", err)
	}
	return Identity{Public: pub, Private: priv}, nil
}

// IdentityFromSeed reconstructs an Identity from a 32-byte seed, the form
// persisted in frosty.toml's "secret" field.
func IdentityFromSeed(seed []byte) (Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return Identity{}, fmt.Errorf("identity seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return Identity{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Seed returns the 32-byte seed suitable for persisting to config.
func (id Identity) Seed() []byte {
	return id.Private.Seed()
}

// EndpointID returns the identity's public identifier.
func (id Identity) EndpointID() EndpointID {
	var out EndpointID
	copy(out[:], id.Public)
	return out
}

// tlsConfig builds a self-signed, Ed25519-keyed certificate whose public
// key is exactly the identity's EndpointID, and a *tls.Config that
// accepts any peer certificate, requires the dialing side to present one
// too (peer authentication happens one layer up, by reading the
// certificate's public key as the EndpointID — see peerEndpointID) and
// negotiates the given ALPN.
func (id Identity) tlsConfig(alpn string) (*tls.Config, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate cert serial: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "frosty"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(100 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, id.Public, id.Private)
	if err != nil {
		return nil, fmt.Errorf("create self-signed cert: %w", err)
	}
	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  id.Private,
	}
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert, // listener side: the dialer's cert carries its EndpointID
		InsecureSkipVerify: true,                     // endpoint identity is verified from the cert's public key, not a CA chain
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}, nil
}

// peerEndpointID extracts the remote EndpointID from a verified TLS
// connection state: the certificate's raw Ed25519 public key.
func peerEndpointID(certs []*x509.Certificate) (EndpointID, error) {
	if len(certs) == 0 {
		return EndpointID{}, fmt.Errorf("no peer certificate presented")
	}
	pub, ok := certs[0].PublicKey.(ed25519.PublicKey)
	if !ok {
		return EndpointID{}, fmt.Errorf("peer certificate is not Ed25519")
	}
	var out EndpointID
	copy(out[:], pub)
	return out, nil
}
