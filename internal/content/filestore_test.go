package content

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const sampleYAML = `
study_sets:
  - id: greetings-1
    title: "기초 인사"
    target_repeat_count: 3
    items:
      - id: item-1
        text: "안녕하세요"
        translation: "Hello"
        audio_url: "https://cdn.example.com/audio/greet-1.mp3"
      - id: item-2
        text: "감사합니다"
        translation: "Thank you"
        audio_url: "https://cdn.example.com/audio/greet-2.mp3"
  - id: food-1
    title: "음식 주문"
    target_repeat_count: 1
    items:
      - id: item-3
        text: "물 주세요"
        translation: "Water, please"
        audio_url: "https://cdn.example.com/audio/food-1.mp3"
`

func TestFileStoreLoad(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStoreFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("NewFileStoreFromReader: %v", err)
	}
	if fs.Len() != 2 {
		t.Fatalf("Len = %d, want 2", fs.Len())
	}

	set, err := fs.LoadStudySet(context.Background(), "greetings-1")
	if err != nil {
		t.Fatalf("LoadStudySet: %v", err)
	}
	if set.Title != "기초 인사" {
		t.Errorf("title = %q, want %q", set.Title, "기초 인사")
	}
	if set.TargetRepeatCount != 3 {
		t.Errorf("target_repeat_count = %d, want 3", set.TargetRepeatCount)
	}
	if len(set.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(set.Items))
	}
	if set.Items[0].Text != "안녕하세요" {
		t.Errorf("items[0].text = %q, want %q", set.Items[0].Text, "안녕하세요")
	}
}

func TestFileStoreNotFound(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStoreFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("NewFileStoreFromReader: %v", err)
	}

	_, err = fs.LoadStudySet(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFileStoreRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	const badYAML = `
study_sets:
  - id: s1
    title: "t"
    target_repeat_count: 1
    bogus_field: true
    items:
      - id: i1
        text: "안녕"
        audio_url: "https://example.com/a.mp3"
`
	if _, err := NewFileStoreFromReader(strings.NewReader(badYAML)); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestStudySetValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		set     StudySet
		wantErr []string // substrings that must appear in the error
	}{
		{
			name: "valid",
			set: StudySet{
				ID:                "s1",
				TargetRepeatCount: 1,
				Items: []StudyItem{
					{ID: "i1", Text: "안녕", AudioURL: "https://example.com/a.mp3"},
				},
			},
		},
		{
			name:    "empty id and no items",
			set:     StudySet{TargetRepeatCount: 1},
			wantErr: []string{"id must not be empty", "has no items"},
		},
		{
			name: "zero repeat count",
			set: StudySet{
				ID: "s1",
				Items: []StudyItem{
					{ID: "i1", Text: "안녕", AudioURL: "https://example.com/a.mp3"},
				},
			},
			wantErr: []string{"target_repeat_count must be >= 1"},
		},
		{
			name: "item missing text and audio",
			set: StudySet{
				ID:                "s1",
				TargetRepeatCount: 2,
				Items:             []StudyItem{{ID: "i1"}},
			},
			wantErr: []string{"has no text", "has no audio_url"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.set.Validate()
			if len(tc.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Validate: %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate: nil, want error")
			}
			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q missing substring %q", err, want)
				}
			}
		})
	}
}
