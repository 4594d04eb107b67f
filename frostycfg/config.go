// Package frostycfg is the frosty.toml-backed config store (spec.md
// §4.5): the node's long-lived identity, and — once the DKG finishes —
// the final key share triple. Loaded entirely into memory at startup,
// rewritten wholesale on every mutation; not safe for concurrent use
// (the DKG is its only writer).
package frostycfg

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	gobase32 "github.com/multiformats/go-base32"

	"github.com/zignig/frosty/internal/obs"
	"github.com/zignig/frosty/transport"
)

var log = obs.Logger("config")

// FileName is the config file's fixed path, relative to the working
// directory the frosty process was started in.
const FileName = "frosty.toml"

// wireConfig is the literal frosty.toml shape (spec.md §6): every field
// but Secret is optional.
type wireConfig struct {
	Secret        string   `toml:"secret"`
	MotherShip    string   `toml:"mother_ship,omitempty"`
	Peers         []string `toml:"peers,omitempty"`
	KeyPackage    string   `toml:"key_package,omitempty"`
	PublicPackage string   `toml:"public_package,omitempty"`
	VerifyKey     string   `toml:"verify_key,omitempty"`
}

// Config is the in-memory, typed view of frosty.toml.
type Config struct {
	Identity transport.Identity
	Peers    []transport.EndpointID

	KeyPackage    []byte // opaque, base32-decoded on load
	PublicPackage []byte
	VerifyKey     []byte

	path string
}

// Load reads and parses frosty.toml from the current directory. A
// missing file is reported as a plain *os.PathError so callers can
// distinguish "first run" from a genuine ConfigIO failure.
func Load() (*Config, error) {
	return LoadFrom(FileName)
}

// LoadFrom is Load against an explicit path (spec.md §4.5: the config
// store is "keyed by the absolute file path frosty.toml" — tests and
// multi-instance harnesses need more than one such path per process).
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w wireConfig
	if err := toml.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrap(err, "config: parse frosty.toml")
	}

	secret, err := hex.DecodeString(w.Secret)
	if err != nil {
		return nil, errors.Wrap(err, "config: decode secret")
	}
	id, err := transport.IdentityFromSeed(secret)
	if err != nil {
		return nil, errors.Wrap(err, "config: rebuild identity")
	}

	c := &Config{Identity: id, path: path}
	for _, p := range w.Peers {
		eid, err := decodeEndpointID(p)
		if err != nil {
			return nil, errors.Wrap(err, "config: decode peer")
		}
		c.Peers = append(c.Peers, eid)
	}
	if w.KeyPackage != "" {
		if c.KeyPackage, err = decodeBase32(w.KeyPackage); err != nil {
			return nil, errors.Wrap(err, "config: decode key_package")
		}
	}
	if w.PublicPackage != "" {
		if c.PublicPackage, err = decodeBase32(w.PublicPackage); err != nil {
			return nil, errors.Wrap(err, "config: decode public_package")
		}
	}
	if w.VerifyKey != "" {
		if c.VerifyKey, err = decodeBase32(w.VerifyKey); err != nil {
			return nil, errors.Wrap(err, "config: decode verify_key")
		}
	}
	return c, nil
}

// New constructs a fresh config holding only the node's identity, and
// immediately persists it (spec.md §4.5, "new(secret) constructs with
// identity only").
func New(id transport.Identity) (*Config, error) {
	return NewAt(FileName, id)
}

// NewAt is New against an explicit path; see LoadFrom.
func NewAt(path string, id transport.Identity) (*Config, error) {
	c := &Config{Identity: id, path: path}
	if err := c.save(); err != nil {
		return nil, err
	}
	return c, nil
}

// SetPeers overwrites the sealed roster and rewrites the file.
func (c *Config) SetPeers(peers []transport.EndpointID) error {
	c.Peers = peers
	return c.save()
}

// SetPackages overwrites the final DKG output triple and rewrites the
// file (spec.md §4.5, "set_packages(ks, ps, vk) overwrites the final
// triple").
func (c *Config) SetPackages(keyPackage, publicPackage, verifyKey []byte) error {
	c.KeyPackage = keyPackage
	c.PublicPackage = publicPackage
	c.VerifyKey = verifyKey
	return c.save()
}

func (c *Config) save() error {
	w := wireConfig{
		Secret: hex.EncodeToString(c.Identity.Seed()),
	}
	for _, p := range c.Peers {
		w.Peers = append(w.Peers, encodeEndpointID(p))
	}
	if c.KeyPackage != nil {
		w.KeyPackage = encodeBase32(c.KeyPackage)
	}
	if c.PublicPackage != nil {
		w.PublicPackage = encodeBase32(c.PublicPackage)
	}
	if c.VerifyKey != nil {
		w.VerifyKey = encodeBase32(c.VerifyKey)
	}

	data, err := toml.Marshal(w)
	if err != nil {
		return errors.Wrap(err, "config: marshal frosty.toml")
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return errors.Wrap(err, "config: write frosty.toml")
	}
	log.Debugf("wrote %s", c.path)
	return nil
}

func encodeEndpointID(id transport.EndpointID) string {
	return encodeBase32(id[:])
}

func decodeEndpointID(s string) (transport.EndpointID, error) {
	b, err := decodeBase32(s)
	if err != nil {
		return transport.EndpointID{}, err
	}
	if len(b) != 32 {
		return transport.EndpointID{}, fmt.Errorf("endpoint id must decode to 32 bytes, got %d", len(b))
	}
	var id transport.EndpointID
	copy(id[:], b)
	return id, nil
}

func encodeBase32(b []byte) string {
	return strings.ToLower(gobase32.RawStdEncoding.EncodeToString(b))
}

func decodeBase32(s string) ([]byte, error) {
	return gobase32.RawStdEncoding.DecodeString(strings.ToUpper(s))
}
