package ceptr

import (
	"io/ioutil"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) (*PackageStore, func()) {
	t.Helper()
	dir, err := ioutil.TempDir("", "ceptr-store")
	require.NoError(t, err)
	ps, err := OpenPackageStore(path.Join(dir, "packages.db"))
	require.NoError(t, err)
	return ps, func() {
		require.NoError(t, ps.Close())
		os.RemoveAll(dir)
	}
}

func TestPackageStoreRoundTrip(t *testing.T) {
	ps, cleanup := tempStore(t)
	defer cleanup()

	id := PackageNameToID("demo")
	blob := []byte{0xCE, 0x97, 0x12, 0x00, 0xFF}
	require.NoError(t, ps.Save(id, blob))

	got, ok, err := ps.Load(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, blob, got)

	_, ok, err = ps.Load(PackageNameToID("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPackageStoreOverwrite(t *testing.T) {
	ps, cleanup := tempStore(t)
	defer cleanup()

	id := PackageNameToID("demo")
	require.NoError(t, ps.Save(id, []byte("v1")))
	require.NoError(t, ps.Save(id, []byte("v2")))

	got, ok, err := ps.Load(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), got)
}

func TestPackageNameToIDStable(t *testing.T) {
	a := PackageNameToID("demo")
	b := PackageNameToID("demo")
	c := PackageNameToID("other")

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.False(t, a.IsNil())
	require.NotEmpty(t, a.String())
}

func TestHostIDUniqueness(t *testing.T) {
	a := NewHostID()
	b := NewHostID()
	require.False(t, a.Equal(b))
	require.False(t, a.IsNil())
	require.True(t, HostID{}.IsNil())
}
