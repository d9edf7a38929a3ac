// Package snapshot reads and writes subscription snapshots: a JSON array
// of subreddit names, sorted case-insensitively so that two snapshots of
// the same account diff cleanly.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

var ErrMalformed = errors.New("malformed snapshot")

// DefaultFilename is used when no file is given on the command line.
func DefaultFilename(user string) string {
	return fmt.Sprintf("%s.subs", user)
}

// Export returns the names in snapshot order.
func Export(current mapset.Set[string]) []string {
	names := current.ToSlice()
	sort.Slice(names, func(i, j int) bool {
		a, b := strings.ToLower(names[i]), strings.ToLower(names[j])
		if a != b {
			return a < b
		}
		return names[i] < names[j]
	})
	return names
}

func Encode(w io.Writer, names []string) error {
	if names == nil {
		names = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(names)
}

// Marshal renders current exactly as Save would write it.
func Marshal(current mapset.Set[string]) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, Export(current)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the snapshot through a temporary file in the same
// directory, so an interrupted export never leaves a truncated file.
func Save(filename string, current mapset.Set[string]) error {
	data, err := Marshal(current)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	mode := os.FileMode(0644)
	if fi, err := os.Stat(filename); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Decode reads a snapshot and returns its distinct names.
func Decode(r io.Reader) (mapset.Set[string], error) {
	dec := json.NewDecoder(r)
	var raw []json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// null decodes into a nil slice without error.
	if raw == nil {
		return nil, fmt.Errorf("%w: top-level value is not an array", ErrMalformed)
	}
	if err := dec.Decode(&json.RawMessage{}); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after the array", ErrMalformed)
	}

	names := mapset.NewSetWithSize[string](len(raw))
	for i, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err != nil {
			return nil, fmt.Errorf("%w: element %d is not a string", ErrMalformed, i)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: element %d is empty", ErrMalformed, i)
		}
		names.Add(name)
	}
	return names, nil
}

func Load(filename string) (mapset.Set[string], error) {
	fh, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer fh.Close()

	names, err := Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return names, nil
}
