// Package jobdir stores each job's final output and metadata on disk,
// one directory per job ID.
package jobdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

const (
	OutputFile   = "output.txt"
	MetadataFile = "metadata.json"

	maxIDLen = 128
)

var ErrInvalidID = errors.New("invalid job id")

// ValidID reports whether id is usable as a directory name.
// Allowed characters: A-Z a-z 0-9 . _ - with no ".." and no leading dot.
func ValidID(id string) bool {
	if id == "" || len(id) > maxIDLen {
		return false
	}
	if strings.HasPrefix(id, ".") || strings.Contains(id, "..") {
		return false
	}
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

// Dir is the root of all job directories.
type Dir struct {
	root string
	mu   sync.Mutex // serializes metadata read-merge-write
}

func New(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Root() string { return d.root }

// Path returns the directory for jobID without creating it.
func (d *Dir) Path(jobID string) (string, error) {
	if !ValidID(jobID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, jobID)
	}
	return filepath.Join(d.root, jobID), nil
}

func (d *Dir) ensure(jobID string) (string, error) {
	p, err := d.Path(jobID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p, 0o750); err != nil {
		return "", err
	}
	return p, nil
}

// WriteOutput replaces output.txt for jobID.
func (d *Dir) WriteOutput(jobID, output string) error {
	p, err := d.ensure(jobID)
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(p, OutputFile), []byte(output), 0o640)
}

// ReadOutput returns output.txt for jobID. A missing file yields an error
// matching os.ErrNotExist.
func (d *Dir) ReadOutput(jobID string) (string, error) {
	p, err := d.Path(jobID)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(filepath.Join(p, OutputFile))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadMetadata returns the decoded metadata.json for jobID.
func (d *Dir) ReadMetadata(jobID string) (map[string]any, error) {
	p, err := d.Path(jobID)
	if err != nil {
		return nil, err
	}
	return readMeta(filepath.Join(p, MetadataFile))
}

// MergeMetadata overlays the JSON fields of v onto the existing
// metadata.json. Fields not present in v are kept.
func (d *Dir) MergeMetadata(jobID string, v any) error {
	fields, err := toFields(v)
	if err != nil {
		return err
	}
	p, err := d.ensure(jobID)
	if err != nil {
		return err
	}
	path := filepath.Join(p, MetadataFile)

	d.mu.Lock()
	defer d.mu.Unlock()
	cur, err := readMeta(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		// unreadable metadata is replaced rather than blocking the write
		cur = nil
	}
	if cur == nil {
		cur = map[string]any{}
	}
	maps.Copy(cur, fields)
	b, err := json.MarshalIndent(cur, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, b, 0o640)
}

func readMeta(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}

func toFields(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("metadata must encode as a JSON object: %w", err)
	}
	return m, nil
}
