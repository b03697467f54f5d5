package recording

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Layout decides where recordings of each kind live on disk.
type Layout struct {
	// MovesDir holds recorder output, one file per move id.
	MovesDir string
	// RecordedSuffix is appended to a move id to form its file name.
	RecordedSuffix string
	// BridgesDir holds generated bridges, named "<a>_to_<b>.txt".
	BridgesDir string
}

// DefaultLayout returns the layout the recorder writes by default.
func DefaultLayout() Layout {
	return Layout{
		MovesDir:       "recordings",
		RecordedSuffix: "_interpolated.txt",
		BridgesDir:     filepath.Join("recordings", "bridges"),
	}
}

// Path resolves the file for a move id of the given kind.
func (l Layout) Path(id string, kind Kind) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	switch kind {
	case KindRecorded:
		return filepath.Join(l.MovesDir, id+l.RecordedSuffix), nil
	case KindBridge:
		return filepath.Join(l.BridgesDir, id+".txt"), nil
	default:
		return "", fmt.Errorf("unknown recording kind %v", kind)
	}
}

// ValidateID rejects ids that are empty or could escape the recording
// directories.
func ValidateID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	case strings.ContainsAny(id, "/\\\x00\t\r\n"):
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Store loads and saves recordings under a Layout.
type Store struct {
	layout Layout
}

// NewStore creates a Store for the given layout.
func NewStore(layout Layout) *Store {
	return &Store{layout: layout}
}

// Layout returns the store's directory layout.
func (s *Store) Layout() Layout {
	return s.layout
}

// Load reads a recording. A missing file yields ErrNotFound; parse failures
// yield ErrMalformed; anything else is a wrapped read error.
func (s *Store) Load(id string, kind Kind) (*Recording, error) {
	path, err := s.layout.Path(id, kind)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s %q at %s", ErrNotFound, kind, id, path)
		}
		return nil, fmt.Errorf("open %s move %q: %w", kind, id, err)
	}
	defer f.Close()

	return Read(f, id, kind)
}

// Save writes a recording, replacing any existing file. The file is written
// to a temporary name and renamed so concurrent readers never see a partial
// table.
func (s *Store) Save(rec *Recording) error {
	path, err := s.layout.Path(rec.ID, rec.Kind)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, rec); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s move %q: %w", rec.Kind, rec.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Remove deletes a recording. Removing a missing recording is not an error.
func (s *Store) Remove(id string, kind Kind) error {
	path, err := s.layout.Path(id, kind)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s move %q: %w", kind, id, err)
	}
	return nil
}

// List returns the ids of all recordings of the given kind, sorted by name.
func (s *Store) List(kind Kind) ([]string, error) {
	dir, suffix := s.layout.MovesDir, s.layout.RecordedSuffix
	if kind == KindBridge {
		dir, suffix = s.layout.BridgesDir, ".txt"
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, suffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, suffix))
	}
	return ids, nil
}
