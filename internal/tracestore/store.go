// Package tracestore keeps finished trace sessions, one JSON file each.
package tracestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

const ext = ".json"

// Store handles trace session persistence under a directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// ValidateName rejects names that could escape the store directory.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errdefs.InvalidArgument("session name is required")
	case name == "." || name == "..":
		return errdefs.InvalidArgument("invalid session name %q", name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return errdefs.InvalidArgument("session name %q must not contain path separators", name)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+ext)
}

// Save writes the session under its name, replacing any previous one.
func (s *Store) Save(session *models.TraceSession) (string, error) {
	if err := ValidateName(session.Session.Name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create sessions directory: %w", err)
	}
	if session.Requests == nil {
		session.Requests = []models.NetworkRequestRecord{}
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	path := s.path(session.Session.Name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write session: %w", err)
	}
	return path, nil
}

// Load returns the named session, or false when it does not exist.
func (s *Store) Load(name string) (*models.TraceSession, bool, error) {
	if err := ValidateName(name); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read session: %w", err)
	}

	var session models.TraceSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, false, fmt.Errorf("failed to parse session %q: %w", name, err)
	}
	return &session, true, nil
}

// List summarizes stored sessions, newest first. Unreadable files are
// skipped.
func (s *Store) List() ([]models.SessionSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []models.SessionSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	summaries := make([]models.SessionSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		session, ok, err := s.Load(strings.TrimSuffix(entry.Name(), ext))
		if err != nil || !ok {
			continue
		}
		summaries = append(summaries, models.SessionSummary{
			Name:          session.Session.Name,
			StartTime:     session.Session.StartTime,
			EndTime:       session.Session.EndTime,
			TotalRequests: session.Session.TotalRequests,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].StartTime.After(summaries[j].StartTime)
	})
	return summaries, nil
}

// Delete removes the named session and reports whether it existed.
func (s *Store) Delete(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	err := os.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return true, nil
}
