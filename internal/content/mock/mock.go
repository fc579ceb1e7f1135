// Package mock provides a test double for the content package interfaces.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/42Seoul/Speak-King-Korean-LMS/internal/content"
)

// Store is a mock implementation of content.Store.
type Store struct {
	mu sync.Mutex

	// Sets holds the study sets served by LoadStudySet, keyed by ID.
	Sets map[string]*content.StudySet

	// Err, if non-nil, is returned by every LoadStudySet call.
	Err error

	// LoadCalls records every requested study set ID in order.
	LoadCalls []string
}

// Compile-time interface check.
var _ content.Store = (*Store)(nil)

// LoadStudySet records the call and serves from Sets.
func (s *Store) LoadStudySet(_ context.Context, id string) (*content.StudySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadCalls = append(s.LoadCalls, id)
	if s.Err != nil {
		return nil, s.Err
	}
	set, ok := s.Sets[id]
	if !ok {
		return nil, fmt.Errorf("mock: load study set %q: %w", id, content.ErrNotFound)
	}
	return set, nil
}
