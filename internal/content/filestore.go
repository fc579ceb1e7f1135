package content

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a study-set YAML file.
//
// Example:
//
//	study_sets:
//	  - id: greetings-1
//	    title: "기초 인사"
//	    target_repeat_count: 3
//	    items:
//	      - id: item-1
//	        text: "안녕하세요"
//	        translation: "Hello"
//	        audio_url: "https://cdn.example.com/audio/greet-1.mp3"
type File struct {
	StudySets []StudySet `yaml:"study_sets"`
}

// FileStore is a [Store] backed by a single YAML file, loaded once at
// construction. Useful for offline and classroom deployments without a
// database.
type FileStore struct {
	sets map[string]*StudySet
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// NewFileStore reads and parses a study-set YAML file from disk and validates
// every set in it. Returns a descriptive error if the file cannot be opened,
// parsed, or validated.
func NewFileStore(path string) (*FileStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("content: open study set file %q: %w", path, err)
	}
	defer f.Close()

	fs, err := NewFileStoreFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("content: parse study set file %q: %w", path, err)
	}
	return fs, nil
}

// NewFileStoreFromReader parses study-set YAML from an [io.Reader]. The
// reader is consumed entirely; the caller is responsible for closing it.
func NewFileStoreFromReader(r io.Reader) (*FileStore, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("content: decode study set yaml: %w", err)
	}

	sets := make(map[string]*StudySet, len(file.StudySets))
	for i := range file.StudySets {
		set := &file.StudySets[i]
		if err := set.Validate(); err != nil {
			return nil, err
		}
		if _, dup := sets[set.ID]; dup {
			return nil, fmt.Errorf("content: duplicate study set id %q", set.ID)
		}
		sets[set.ID] = set
	}
	return &FileStore{sets: sets}, nil
}

// LoadStudySet returns the study set with the given ID.
func (s *FileStore) LoadStudySet(_ context.Context, id string) (*StudySet, error) {
	set, ok := s.sets[id]
	if !ok {
		return nil, fmt.Errorf("content: load study set %q: %w", id, ErrNotFound)
	}
	return set, nil
}

// Len returns the number of study sets loaded.
func (s *FileStore) Len() int {
	return len(s.sets)
}
