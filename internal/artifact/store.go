package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// DocFileName is the append-only review log kept in the artifact directory.
	DocFileName = "documentation.txt"

	fixedPrefix = "fixed_"
	separator   = "----------------------------------------"
)

// Store persists review pipeline outputs under a single directory: an
// append-only review log plus one fixed-code slot per source filename.
// It is safe for concurrent use; appends are serialized and each fixed
// slot is replaced atomically.
type Store struct {
	dir   string
	logMu sync.Mutex
	slots sync.Map // base filename -> *sync.Mutex
}

// NewStore creates the artifact directory if needed and returns a Store
// rooted at it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the artifact directory.
func (s *Store) Dir() string { return s.dir }

// DocPath returns the path of the review log.
func (s *Store) DocPath() string { return filepath.Join(s.dir, DocFileName) }

// FixedPath returns the path of the fixed-code slot for filename.
func (s *Store) FixedPath(filename string) string {
	return filepath.Join(s.dir, fixedPrefix+filepath.Base(filename))
}

// AppendReview appends one review block for filename to the review log.
// Records are never rewritten; readers see whole blocks in write order.
func (s *Store) AppendReview(filename, review string) error {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	f, err := os.OpenFile(s.DocPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open review log: %w", err)
	}
	block := fmt.Sprintf("Review for %s:\n%s\n%s\n", filepath.Base(filename), review, separator)
	if _, err := f.WriteString(block); err != nil {
		f.Close()
		return fmt.Errorf("append review for %s: %w", filepath.Base(filename), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync review log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close review log: %w", err)
	}
	return nil
}

// ReplaceFixed replaces the fixed-code slot for filename in full. The
// new content is written to a temp file and renamed into place, so a
// concurrent reader never observes a truncated or mixed-version file.
func (s *Store) ReplaceFixed(filename, fixed string) error {
	base := filepath.Base(filename)
	mu := s.slot(base)
	mu.Lock()
	defer mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, fixedPrefix+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(fixed); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write fixed artifact for %s: %w", base, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync fixed artifact for %s: %w", base, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpPath, s.FixedPath(base)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace fixed artifact for %s: %w", base, err)
	}
	return nil
}

func (s *Store) slot(base string) *sync.Mutex {
	v, _ := s.slots.LoadOrStore(base, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// IsArtifact reports whether name is one of the store's own outputs.
// The watcher uses this to keep generated files from re-triggering
// reviews when artifacts live inside the watched directory.
func IsArtifact(name string) bool {
	base := filepath.Base(name)
	return base == DocFileName || strings.HasPrefix(base, fixedPrefix)
}
