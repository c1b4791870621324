// Package persist records which project roots currently carry an injected
// listener, so residue left behind by a crashed control plane can be removed
// on the next start.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"pkt.systems/gamebridge/internal/fsutil"
	"pkt.systems/pslog"
)

// FileName is the state file inside the state directory.
const FileName = "injected.yaml"

// InjectedRoot is one recorded injection.
type InjectedRoot struct {
	Path       string    `yaml:"path"`
	InjectedAt time.Time `yaml:"injected_at"`
	PID        int       `yaml:"pid,omitempty"`
}

type snapshot struct {
	Roots []InjectedRoot `yaml:"roots"`
}

// Store persists the injected-root record as YAML.
type Store struct {
	mu   sync.Mutex
	path string
	log  pslog.Logger
}

// NewStore constructs a store in dir.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a store in dir with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{path: filepath.Join(dir, FileName), log: logger}, nil
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Roots returns the recorded roots, oldest first.
func (s *Store) Roots() ([]InjectedRoot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load()
	return snap.Roots, err
}

// Add records root. Recording an already recorded root refreshes its entry.
func (s *Store) Add(root string, pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load()
	if err != nil {
		return err
	}
	snap.Roots = slices.DeleteFunc(snap.Roots, func(r InjectedRoot) bool { return r.Path == root })
	snap.Roots = append(snap.Roots, InjectedRoot{Path: root, InjectedAt: time.Now().UTC(), PID: pid})
	return s.save(snap)
}

// Remove forgets root. Removing an unknown root is a no-op.
func (s *Store) Remove(root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load()
	if err != nil {
		return err
	}
	before := len(snap.Roots)
	snap.Roots = slices.DeleteFunc(snap.Roots, func(r InjectedRoot) bool { return r.Path == root })
	if len(snap.Roots) == before {
		return nil
	}
	return s.save(snap)
}

func (s *Store) load() (snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss")
			}
			return snapshot{}, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "err", err)
		}
		return snapshot{}, err
	}
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "err", err)
		}
		return snapshot{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return snap, nil
}

func (s *Store) save(snap snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("state save ok", "roots", len(snap.Roots))
	}
	return nil
}
