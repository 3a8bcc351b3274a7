package rules

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"testcase-management-service/internal/logger"
)

// Store loads and persists the classification rule file. Reads never fail:
// a missing or malformed file degrades to an empty ruleset so callers fall
// back to the default classification.
//
// Updates are read-modify-write of the whole file with no file locking.
// Concurrent writers to different keys can lose an update (last write wins
// on the serialized file, not per key). The service assumes a single writer
// at a time.
type Store struct {
	path string
	log  *logger.Logger

	warnOnce sync.Once
}

// NewStore creates a rule store backed by the JSON file at path.
func NewStore(path string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{path: path, log: log}
}

// Load reads the current ruleset. On a missing or malformed file it logs a
// warning once and returns an empty ruleset.
func (s *Store) Load() *RuleSet {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.warn("rule file unreadable, auto-categorization disabled", err)
		return NewRuleSet()
	}

	rs, err := parseRuleSet(data)
	if err != nil {
		s.warn("rule file malformed, auto-categorization disabled", err)
		return NewRuleSet()
	}
	return rs
}

// UpdateGlobalPrecondition inserts or overwrites the precondition text
// stored under key and writes the whole rule file back. Empty text is a
// no-op.
func (s *Store) UpdateGlobalPrecondition(key, text string) error {
	text = strings.TrimSpace(text)
	if key == "" || text == "" {
		return nil
	}

	rs := s.Load()
	rs.GlobalPreconditions[key] = text

	data, err := rs.marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize rule file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write rule file: %w", err)
	}
	return nil
}

func (s *Store) warn(msg string, err error) {
	s.warnOnce.Do(func() {
		s.log.Warn(msg, "path", s.path, "error", err)
	})
}
