// Package nsconfig persists per-namespace sandbox configuration to YAML
// files under $MICROSANDBOX_HOME/namespaces/<ns>/, with advisory locking so
// the lifecycle manager's read-merge-write cycle does not race itself
// across concurrent requests against the same namespace.
package nsconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

const configFileName = "microsandbox.yaml"

// Store resolves namespace directories under a root and persists their
// config files.
type Store struct {
	root string
}

// New creates a Store rooted at $MICROSANDBOX_HOME.
func New(home string) *Store {
	return &Store{root: filepath.Join(home, "namespaces")}
}

// Dir returns the on-disk directory for a namespace.
func (s *Store) Dir(namespace string) string {
	return filepath.Join(s.root, namespace)
}

// EnsureNamespace creates the namespace directory and its .menv scaffolding
// if absent.
func (s *Store) EnsureNamespace(namespace string) error {
	dir := s.Dir(namespace)
	if err := os.MkdirAll(filepath.Join(dir, ".menv", "log"), 0o755); err != nil {
		return fmt.Errorf("create namespace %s: %w", namespace, err)
	}
	return nil
}

// Exists reports whether a namespace directory and config file are present.
func (s *Store) Exists(namespace string) bool {
	_, err := os.Stat(s.configPath(namespace))
	return err == nil
}

func (s *Store) configPath(namespace string) string {
	return filepath.Join(s.Dir(namespace), configFileName)
}

func (s *Store) lockPath(namespace string) string {
	return filepath.Join(s.Dir(namespace), ".menv", "config.lock")
}

// Load reads a namespace's config file, returning an empty NamespaceFile
// (not an error) if the file does not exist yet.
func (s *Store) Load(namespace string) (*rpctypes.NamespaceFile, error) {
	data, err := os.ReadFile(s.configPath(namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return &rpctypes.NamespaceFile{Sandboxes: map[string]rpctypes.SandboxConfig{}}, nil
		}
		return nil, fmt.Errorf("read namespace config: %w", err)
	}

	var nf rpctypes.NamespaceFile
	if err := yaml.Unmarshal(data, &nf); err != nil {
		return nil, fmt.Errorf("parse namespace config: %w", err)
	}
	if nf.Sandboxes == nil {
		nf.Sandboxes = map[string]rpctypes.SandboxConfig{}
	}
	return &nf, nil
}

// Save writes a namespace's config file atomically (write to a temp file,
// then rename) so a crash mid-write never leaves a truncated config.
func (s *Store) Save(namespace string, nf *rpctypes.NamespaceFile) error {
	if err := s.EnsureNamespace(namespace); err != nil {
		return err
	}

	data, err := yaml.Marshal(nf)
	if err != nil {
		return fmt.Errorf("marshal namespace config: %w", err)
	}

	path := s.configPath(namespace)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write namespace config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit namespace config: %w", err)
	}
	return nil
}

// ConfigMtime returns the config file's last-modified time, used by the
// supervisor to invalidate stale DB entries.
func (s *Store) ConfigMtime(namespace string) (int64, error) {
	info, err := os.Stat(s.configPath(namespace))
	if err != nil {
		return 0, err
	}
	return info.ModTime().Unix(), nil
}

// Namespaces lists every namespace directory under the root.
func (s *Store) Namespaces() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Lock acquires an advisory exclusive lock over namespace's config file for
// the duration of a read-merge-write cycle. The returned Unlock must be
// called to release it.
func (s *Store) Lock(namespace string) (unlock func(), err error) {
	if err := s.EnsureNamespace(namespace); err != nil {
		return nil, err
	}
	path := s.lockPath(namespace)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock namespace %s: %w", namespace, err)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// LogPath returns the per-sandbox log file path for a namespace/name pair.
func (s *Store) LogPath(namespace, name string) string {
	return filepath.Join(s.Dir(namespace), ".menv", "log", name+".log")
}

// SandboxDBPath returns the supervisor state database path for a namespace.
func (s *Store) SandboxDBPath(namespace string) string {
	return filepath.Join(s.Dir(namespace), ".menv", "sandbox.db")
}
