// Package content defines the curriculum types and the Store interface the
// practice session engine loads study sets from.
//
// A study set is an ordered list of sentence/audio pairs plus the number of
// full passes a learner must complete. The session engine treats loaded sets
// as immutable; all authoring happens outside this service.
package content

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Store implementations when no study set with the
// requested ID exists.
var ErrNotFound = errors.New("content: study set not found")

// StudyItem is one practice unit: the target phrase, its display translation,
// and a playable reference pronunciation.
type StudyItem struct {
	// ID is an opaque stable identifier.
	ID string `yaml:"id" json:"id"`

	// Text is the target phrase in the source language.
	Text string `yaml:"text" json:"text"`

	// Translation is display-only helper text for the learner.
	Translation string `yaml:"translation" json:"translation,omitempty"`

	// AudioURL references the recorded reference pronunciation.
	AudioURL string `yaml:"audio_url" json:"audio_url"`
}

// StudySet is an ordered curriculum unit assigned to learners.
type StudySet struct {
	// ID is an opaque stable identifier.
	ID string `yaml:"id"`

	// Title is the set's display name.
	Title string `yaml:"title"`

	// Items is the ordered sequence of practice units.
	Items []StudyItem `yaml:"items"`

	// TargetRepeatCount is the number of full passes through Items required
	// to finish one practice session. Always >= 1 for a valid set.
	TargetRepeatCount int `yaml:"target_repeat_count"`
}

// Validate checks the structural invariants of a study set. All violations
// are reported, joined into one error.
func (s *StudySet) Validate() error {
	var errs []error
	if s.ID == "" {
		errs = append(errs, errors.New("content: study set id must not be empty"))
	}
	if len(s.Items) == 0 {
		errs = append(errs, fmt.Errorf("content: study set %q has no items", s.ID))
	}
	if s.TargetRepeatCount < 1 {
		errs = append(errs, fmt.Errorf("content: study set %q target_repeat_count must be >= 1, got %d", s.ID, s.TargetRepeatCount))
	}
	for i, item := range s.Items {
		if item.ID == "" {
			errs = append(errs, fmt.Errorf("content: study set %q item %d has no id", s.ID, i))
		}
		if item.Text == "" {
			errs = append(errs, fmt.Errorf("content: study set %q item %q has no text", s.ID, item.ID))
		}
		if item.AudioURL == "" {
			errs = append(errs, fmt.Errorf("content: study set %q item %q has no audio_url", s.ID, item.ID))
		}
	}
	return errors.Join(errs...)
}

// Store loads study sets for practice sessions. Implementations are read-only
// from the session engine's point of view.
type Store interface {
	// LoadStudySet returns the study set with the given ID, or a
	// [ErrNotFound]-wrapping error when it does not exist.
	LoadStudySet(ctx context.Context, id string) (*StudySet, error)
}
