package frostycfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zignig/frosty/transport"
)

// chdirTemp points the package-global FileName lookup at a scratch
// directory for the duration of the test.
func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
}

func TestConfigRoundTrip(t *testing.T) {
	chdirTemp(t)

	id, err := transport.NewIdentity()
	require.NoError(t, err)

	c, err := New(id)
	require.NoError(t, err)

	peerA, err := transport.NewIdentity()
	require.NoError(t, err)
	peerB, err := transport.NewIdentity()
	require.NoError(t, err)
	require.NoError(t, c.SetPeers([]transport.EndpointID{peerA.EndpointID(), peerB.EndpointID()}))

	require.NoError(t, c.SetPackages([]byte("key-share"), []byte("public-share"), []byte("verify-key")))

	loaded, err := Load()
	require.NoError(t, err)

	require.Equal(t, c.Identity.Seed(), loaded.Identity.Seed())
	require.Equal(t, c.Peers, loaded.Peers)
	require.Equal(t, c.KeyPackage, loaded.KeyPackage)
	require.Equal(t, c.PublicPackage, loaded.PublicPackage)
	require.Equal(t, c.VerifyKey, loaded.VerifyKey)
}

func TestConfigLoadMissingFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load()
	require.Error(t, err)
	require.True(t, os.IsNotExist(err))
}

func TestConfigFilePath(t *testing.T) {
	chdirTemp(t)
	id, err := transport.NewIdentity()
	require.NoError(t, err)
	_, err = New(id)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(".", FileName))
	require.NoError(t, err)
}
