// Package credstore persists client identity and OAuth tokens as a
// newline-delimited KEY=value file restricted to the owning user. It is a
// leaf package: drive/ reads and updates credentials through it without
// knowing where or how they are stored.
package credstore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FilePerms restricts the credential file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credential directory.
const DirPerms = 0o700

// Well-known keys. Values under other keys are preserved untouched on update.
const (
	KeyClientID     = "CLIENT_ID"
	KeyClientSecret = "CLIENT_SECRET"
	KeyAPIKey       = "API_KEY"
	KeyRefreshToken = "REFRESH_TOKEN"
	KeyAccessToken  = "ACCESS_TOKEN"
	KeyTokenKind    = "TOKEN_KIND"
)

// Store reads and rewrites one KEY=value credential file. It is the sole
// writer of that file; concurrent processes are not coordinated.
type Store struct {
	path string
}

// New returns a Store backed by the file at path. The file need not exist
// yet; Set creates it on first write.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads every KEY=value entry. A missing file yields an empty map,
// not an error, so first runs start from nothing.
func (s *Store) Load() (map[string]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("credstore: opening %s: %w", s.path, err)
	}
	defer f.Close()

	entries := map[string]string{}
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		entries[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", s.path, err)
	}

	return entries, nil
}

// Get returns the value for key, or "" when absent.
func (s *Store) Get(key string) (string, error) {
	entries, err := s.Load()
	if err != nil {
		return "", err
	}

	return entries[key], nil
}

// Set rewrites the file with key set to value, preserving all other keys.
// An empty value removes the key's line entirely.
func (s *Store) Set(key, value string) error {
	entries, err := s.Load()
	if err != nil {
		return err
	}

	if value == "" {
		delete(entries, key)
	} else {
		entries[key] = value
	}

	return s.write(entries)
}

// SetAll applies several key updates in one rewrite. Empty values remove
// their keys, matching Set.
func (s *Store) SetAll(updates map[string]string) error {
	entries, err := s.Load()
	if err != nil {
		return err
	}

	for key, value := range updates {
		if value == "" {
			delete(entries, key)
		} else {
			entries[key] = value
		}
	}

	return s.write(entries)
}

// write persists entries atomically (write-to-temp + rename) with 0600
// permissions. Keys are sorted so rewrites are byte-stable for diffing.
func (s *Store) write(entries map[string]string) error {
	dir := filepath.Dir(s.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credstore: creating directory %s: %w", dir, mkErr)
	}

	// Temp file in the same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credstore: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: setting permissions: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(entries[key])
		b.WriteByte('\n')
	}

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: writing: %w", err)
	}

	// Flush to stable storage before rename so a crash cannot leave a
	// truncated credential file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("credstore: renaming: %w", err)
	}

	success = true

	return nil
}
