package capture

import "testing"

func TestBufferAccumulation(t *testing.T) {
	t.Parallel()

	var b Buffer

	b.SetRun("안녕", "하세")
	if got := b.Transcript(); got != "안녕" {
		t.Fatalf("transcript = %q, want %q", got, "안녕")
	}
	if got := b.Interim(); got != "하세" {
		t.Fatalf("interim = %q, want %q", got, "하세")
	}

	// Run ends mid-utterance; its finalized text is committed.
	b.CommitRun()
	if got := b.Transcript(); got != "안녕" {
		t.Fatalf("transcript after commit = %q, want %q", got, "안녕")
	}
	if got := b.Interim(); got != "" {
		t.Fatalf("interim after commit = %q, want empty", got)
	}

	// Next run continues the utterance.
	b.SetRun("하세요", "")
	if got := b.Transcript(); got != "안녕하세요" {
		t.Fatalf("transcript = %q, want %q", got, "안녕하세요")
	}
}

func TestBufferSetRunReplaces(t *testing.T) {
	t.Parallel()

	var b Buffer
	b.SetRun("a", "b")
	b.SetRun("ab", "c")
	if got := b.Transcript(); got != "ab" {
		t.Fatalf("transcript = %q, want %q (replace, not append)", got, "ab")
	}
	if got := b.Interim(); got != "c" {
		t.Fatalf("interim = %q, want %q", got, "c")
	}
}

func TestBufferReset(t *testing.T) {
	t.Parallel()

	var b Buffer
	b.SetRun("committed", "live")
	b.CommitRun()
	b.SetRun("more", "text")
	b.Reset()

	if b.Transcript() != "" || b.Interim() != "" {
		t.Fatalf("after reset transcript=%q interim=%q, want both empty", b.Transcript(), b.Interim())
	}
}
