package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/flux/pkg/domain"
)

// Store keeps the fact boards of sessions as JSON files in a directory,
// one file per session.
type Store struct {
	BasePath string
}

// New creates a Store rooted at basePath.
// If basePath is empty, it defaults to ".flux/sessions".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".flux", "sessions")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(session string) string {
	return filepath.Join(s.BasePath, session+".json")
}

// Board opens the blackboard of a session, loading the facts saved by a
// previous process. A session without a file starts empty.
func (s *Store) Board(ctx context.Context, session string) (*Blackboard, error) {
	if session == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	b := &Blackboard{store: s, session: session, facts: make(map[domain.ObjectID][]record)}

	data, err := os.ReadFile(s.path(session))
	if os.IsNotExist(err) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", session, err)
	}
	b.seq = doc.Seq
	for id, list := range doc.Facts {
		b.facts[id] = list
	}
	return b, nil
}

// Delete removes the session file. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, session string) error {
	if session == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if err := os.Remove(s.path(session)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns the ids of the saved sessions, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(sessions)
	return sessions, nil
}

// save writes doc atomically: a temp file in the same directory is synced,
// then renamed over the destination.
func (s *Store) save(session string, doc document) error {
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session, err)
	}

	tmp, err := os.CreateTemp(s.BasePath, "tmp-"+session+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(session)); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
