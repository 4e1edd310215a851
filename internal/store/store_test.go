package store

import (
	"path/filepath"
	"testing"

	"github.com/mtzanidakis/erevna/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.StoreConfig{
		Path:               filepath.Join(t.TempDir(), "test.db"),
		DuplicateThreshold: 0.8,
		CacheSizeLimit:     10,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewAppliesDefaults(t *testing.T) {
	s, err := New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "d.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if s.DuplicateThreshold() != 0.8 {
		t.Errorf("threshold = %v, want 0.8", s.DuplicateThreshold())
	}
	if s.cfg.CacheSizeLimit != 1000 {
		t.Errorf("cache limit = %d, want 1000", s.cfg.CacheSizeLimit)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
