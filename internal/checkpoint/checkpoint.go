// Package checkpoint persists the last-seen item URL per catalog group so
// repeated runs can stop as soon as they reach already-captured territory.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store keeps one checkpoint file per group under a state directory. The
// file's entire trimmed content is the checkpoint URL; an absent file means
// no checkpoint.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load returns the checkpoint URL for a group, or "" when none exists.
func (s *Store) Load(groupKey string) (string, error) {
	data, err := os.ReadFile(s.path(groupKey))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read checkpoint for %s: %w", groupKey, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save replaces the group's checkpoint. The write goes to a temp file first
// and is renamed into place so readers never observe a partial value.
func (s *Store) Save(groupKey, url string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir %q: %w", s.dir, err)
	}

	path := s.path(groupKey)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(url+"\n"), 0o644); err != nil {
		return fmt.Errorf("write checkpoint for %s: %w", groupKey, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit checkpoint for %s: %w", groupKey, err)
	}
	return nil
}

func (s *Store) path(groupKey string) string {
	return filepath.Join(s.dir, groupKey+".txt")
}
