// Package config holds the persisted connection configuration and notifies
// observers on every mutation. Mutations drive rule re-synchronization and
// connectivity re-checks in the coordinator.
package config

import (
	"fmt"
	"sync"

	"github.com/entrhq/guardian/pkg/types"
)

// connectionKey is the well-known storage key for the connection object.
const connectionKey = "connection"

// Connection is the single process-wide configuration object.
type Connection struct {
	Host      string     `json:"host"`
	Token     string     `json:"token"`
	Role      types.Role `json:"role"`
	UserName  string     `json:"userName"`
	Connected bool       `json:"connected"`
}

// Manager owns the in-memory Connection, persists it through a FileStore,
// and fans every effective change out to subscribers. Notifications fire
// only when the stored object actually changed, which keeps the
// connectivity-flag writeback from looping.
type Manager struct {
	mu    sync.RWMutex
	store *FileStore
	conn  Connection
	subs  []func(Connection)
}

// NewManager loads the connection object from the store at path (empty means
// the default location). An absent object yields a zero Connection with the
// root role.
func NewManager(path string) (*Manager, error) {
	store, err := NewFileStore(path)
	if err != nil {
		return nil, err
	}

	m := &Manager{store: store}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	var conn Connection
	found, err := m.store.Get(connectionKey, &conn)
	if err != nil {
		return err
	}
	if !found {
		conn.Role = types.RoleRoot
	}
	if conn.Role != "" && !conn.Role.Valid() {
		return fmt.Errorf("stored config has unknown role %q", conn.Role)
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current connection object.
func (m *Manager) Get() Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

// Set replaces the connection object, persists it, and notifies subscribers
// if anything changed.
func (m *Manager) Set(conn Connection) error {
	if conn.Role != "" && !conn.Role.Valid() {
		return fmt.Errorf("unknown role %q", conn.Role)
	}

	m.mu.Lock()
	if conn == m.conn {
		m.mu.Unlock()
		return nil
	}
	m.conn = conn
	subs := append(([]func(Connection))(nil), m.subs...)
	m.mu.Unlock()

	if err := m.persist(conn); err != nil {
		return err
	}
	for _, fn := range subs {
		fn(conn)
	}
	return nil
}

// SetConnected updates only the last-known-connected flag. A write of the
// current value is a no-op and does not notify.
func (m *Manager) SetConnected(connected bool) error {
	conn := m.Get()
	if conn.Connected == connected {
		return nil
	}
	conn.Connected = connected
	return m.Set(conn)
}

// Subscribe registers fn to run after every effective mutation. Callbacks
// run on the mutating goroutine and must not block for long.
func (m *Manager) Subscribe(fn func(Connection)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Reload re-reads the store from disk (external mutation path, used by the
// file watcher) and notifies subscribers if the object changed.
func (m *Manager) Reload() error {
	if err := m.store.Load(); err != nil {
		return err
	}

	var conn Connection
	found, err := m.store.Get(connectionKey, &conn)
	if err != nil {
		return err
	}
	if !found {
		conn.Role = types.RoleRoot
	}
	if conn.Role != "" && !conn.Role.Valid() {
		return fmt.Errorf("stored config has unknown role %q", conn.Role)
	}

	m.mu.Lock()
	changed := conn != m.conn
	m.conn = conn
	subs := append(([]func(Connection))(nil), m.subs...)
	m.mu.Unlock()

	if changed {
		for _, fn := range subs {
			fn(conn)
		}
	}
	return nil
}

// Path returns the backing file path.
func (m *Manager) Path() string { return m.store.Path() }

func (m *Manager) persist(conn Connection) error {
	if err := m.store.Set(connectionKey, conn); err != nil {
		return err
	}
	return m.store.Save()
}
