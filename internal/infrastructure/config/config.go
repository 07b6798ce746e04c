// Package config manages the bridge's persisted settings: the enabled flag,
// session caps, disabled tools and the endpoint the socket listener binds.
// Settings live in a small yaml document so they survive restarts; host and
// port may additionally be overridden through the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Defaults for the bridge endpoint and capacity.
const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8383
	DefaultSessionCap      = 20
	DefaultLocalSessionCap = 5
)

// Environment variables overriding the configured endpoint.
const (
	EnvHost = "CLOUDBRIDGE_HOST"
	EnvPort = "CLOUDBRIDGE_PORT"
)

// Settings is the serializable configuration document.
type Settings struct {
	Enabled         bool     `yaml:"enabled"`
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	SessionCap      int      `yaml:"sessionCap"`
	LocalSessionCap int      `yaml:"localSessionCap"`
	DisabledTools   []string `yaml:"disabledTools"`
}

// DefaultSettings returns the settings used when no file exists yet.
func DefaultSettings() Settings {
	return Settings{
		Enabled:         true,
		Host:            DefaultHost,
		Port:            DefaultPort,
		SessionCap:      DefaultSessionCap,
		LocalSessionCap: DefaultLocalSessionCap,
	}
}

// Store holds the live settings and persists mutations to its backing file.
// An empty path disables persistence (tests, embedders).
type Store struct {
	mu   sync.RWMutex
	data Settings
	path string
}

// DefaultPath returns the default settings file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cloudbridge", "settings.yaml"), nil
}

// Load reads settings from path, falling back to defaults when the file is
// absent or empty. Environment overrides are applied after the file.
func Load(path string) (*Store, error) {
	s := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, &s); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(&s)
	normalize(&s)

	return &Store{data: s, path: path}, nil
}

// NewStore creates an in-memory store around the given settings. Used by
// tests and embedders that manage persistence themselves.
func NewStore(s Settings) *Store {
	normalize(&s)
	return &Store{data: s}
}

func applyEnv(s *Settings) {
	if host := os.Getenv(EnvHost); host != "" {
		s.Host = host
	}
	if port := os.Getenv(EnvPort); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 && n < 65536 {
			s.Port = n
		}
	}
}

func normalize(s *Settings) {
	if s.Host == "" {
		s.Host = DefaultHost
	}
	// Port 0 is kept as-is: it asks the kernel for a free port.
	if s.Port < 0 || s.Port >= 65536 {
		s.Port = DefaultPort
	}
	if s.SessionCap <= 0 {
		s.SessionCap = DefaultSessionCap
	}
	if s.LocalSessionCap <= 0 {
		s.LocalSessionCap = DefaultLocalSessionCap
	}
}

// Snapshot returns a copy of the current settings.
func (st *Store) Snapshot() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	cp := st.data
	cp.DisabledTools = append([]string(nil), st.data.DisabledTools...)
	return cp
}

// Path returns the backing file path, empty for in-memory stores.
func (st *Store) Path() string {
	return st.path
}

// SetEnabled toggles the bridge and persists the change.
func (st *Store) SetEnabled(enabled bool) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.data.Enabled = enabled
	return st.persist()
}

// SetSessionCap updates the shared session capacity and persists. Values
// below one are clamped at store level; the manager applies max(1, cap)
// again at admission time.
func (st *Store) SetSessionCap(cap int) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if cap < 1 {
		cap = 1
	}
	st.data.SessionCap = cap
	return st.persist()
}

// SetDisabledTools replaces the disabled-tool list and persists.
func (st *Store) SetDisabledTools(tools []string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.data.DisabledTools = append([]string(nil), tools...)
	return st.persist()
}

// SetEndpoint updates the bridge host/port and persists.
func (st *Store) SetEndpoint(host string, port int) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if host != "" {
		st.data.Host = host
	}
	if port > 0 && port < 65536 {
		st.data.Port = port
	}
	return st.persist()
}

// Reload replaces the live settings from a freshly parsed snapshot. Used by
// the file watcher; does not persist (the file already holds the new data).
func (st *Store) Reload(s Settings) {
	normalize(&s)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.data = s
}

func (st *Store) persist() error {
	if st.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return err
	}
	out, err := yaml.Marshal(&st.data)
	if err != nil {
		return err
	}
	return os.WriteFile(st.path, out, 0o644)
}
