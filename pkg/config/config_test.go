package config

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/guardian/pkg/types"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func TestManagerDefaults(t *testing.T) {
	mgr, err := NewManager(tempConfigPath(t))
	require.NoError(t, err)

	conn := mgr.Get()
	assert.Equal(t, types.RoleRoot, conn.Role)
	assert.Empty(t, conn.Host)
	assert.False(t, conn.Connected)
}

func TestManagerSetPersistsAndNotifies(t *testing.T) {
	path := tempConfigPath(t)
	mgr, err := NewManager(path)
	require.NoError(t, err)

	var mu sync.Mutex
	var notified []Connection
	mgr.Subscribe(func(c Connection) {
		mu.Lock()
		notified = append(notified, c)
		mu.Unlock()
	})

	conn := Connection{
		Host:     "https://guardian.local",
		Token:    "tok-1",
		Role:     types.RoleChild,
		UserName: "Mika",
	}
	require.NoError(t, mgr.Set(conn))

	mu.Lock()
	require.Len(t, notified, 1)
	assert.Equal(t, conn, notified[0])
	mu.Unlock()

	// A fresh manager over the same file sees the persisted object.
	reloaded, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, conn, reloaded.Get())
}

func TestManagerSetUnchangedDoesNotNotify(t *testing.T) {
	mgr, err := NewManager(tempConfigPath(t))
	require.NoError(t, err)

	conn := Connection{Host: "https://guardian.local", Role: types.RoleAdult}
	require.NoError(t, mgr.Set(conn))

	count := 0
	mgr.Subscribe(func(Connection) { count++ })

	require.NoError(t, mgr.Set(conn))
	assert.Zero(t, count)
}

func TestSetConnectedIsChangeGuarded(t *testing.T) {
	mgr, err := NewManager(tempConfigPath(t))
	require.NoError(t, err)

	count := 0
	mgr.Subscribe(func(Connection) { count++ })

	require.NoError(t, mgr.SetConnected(true))
	require.NoError(t, mgr.SetConnected(true))
	require.NoError(t, mgr.SetConnected(false))

	// Only the two effective transitions notify; the repeat is silent.
	assert.Equal(t, 2, count)
	assert.False(t, mgr.Get().Connected)
}

func TestManagerRejectsUnknownRole(t *testing.T) {
	mgr, err := NewManager(tempConfigPath(t))
	require.NoError(t, err)

	err = mgr.Set(Connection{Role: "wizard"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestManagerReloadSeesExternalMutation(t *testing.T) {
	path := tempConfigPath(t)
	mgr, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, mgr.Set(Connection{Host: "https://a.local", Role: types.RoleAdult}))

	// Another manager over the same file plays the external writer.
	other, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, other.Set(Connection{Host: "https://b.local", Role: types.RoleChild}))

	count := 0
	mgr.Subscribe(func(Connection) { count++ })

	require.NoError(t, mgr.Reload())
	assert.Equal(t, 1, count)
	assert.Equal(t, "https://b.local", mgr.Get().Host)
	assert.Equal(t, types.RoleChild, mgr.Get().Role)

	// Reloading again without changes stays silent.
	require.NoError(t, mgr.Reload())
	assert.Equal(t, 1, count)
}
