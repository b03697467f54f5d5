package testdata

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed moves/*.txt
var movesFS embed.FS

// Fixture move ids. Broken has a row with a two-component vector.
const (
	Wave   = "wave"
	Reach  = "reach"
	Point  = "point"
	Broken = "broken"
)

// RecordedSuffix is the file suffix the fixtures use.
const RecordedSuffix = "_interpolated.txt"

// LoadMove returns the raw bytes of a fixture move file.
func LoadMove(id string) ([]byte, error) {
	data, err := movesFS.ReadFile("moves/" + id + RecordedSuffix)
	if err != nil {
		return nil, fmt.Errorf("load move %s: %w", id, err)
	}
	return data, nil
}

// WriteMoves copies every fixture move file into dir.
func WriteMoves(dir string) error {
	entries, err := movesFS.ReadDir("moves")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := movesFS.ReadFile("moves/" + entry.Name())
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, entry.Name()), data, 0644); err != nil {
			return fmt.Errorf("write move %s: %w", entry.Name(), err)
		}
	}
	return nil
}
