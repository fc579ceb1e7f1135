// Package score evaluates how closely a spoken transcript matches a target
// phrase. It is the judging core of the speaking-practice loop: the session
// engine calls [Evaluator.Evaluate] on every transcript delta emitted by the
// capture layer, so evaluation must be pure, deterministic, and cheap enough
// for per-keystroke-equivalent invocation.
//
// Matching happens in two stages:
//
//  1. Contains rule: after normalization, a candidate that contains the
//     target as a substring scores 100 immediately. This rewards learners
//     who over-speak — "안녕하세요 반갑습니다" passes for the target
//     "안녕하세요" — and short-circuits the distance computation.
//
//  2. Similarity rule: otherwise the Levenshtein edit distance between the
//     normalized strings is converted into an accuracy percentage,
//     (maxLen - distance) / maxLen × 100, rounded to the nearest integer.
//     A score at or above the pass threshold (default 70) passes.
//
// Normalization lowercases, strips a fixed punctuation set, and removes all
// whitespace, so word segmentation differences between the recognizer and
// the authored sentence never affect the score.
package score

import (
	"math"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// defaultPassThreshold is the minimum similarity accuracy (in percent)
// accepted as a pass. Product tuning constant; override with
// [WithPassThreshold].
const defaultPassThreshold = 70

// punctuation is the fixed set of characters stripped during normalization.
const punctuation = `.,?!;:"'()[]{}`

// MatchType classifies how a candidate matched (or failed to match) a target.
type MatchType string

const (
	// MatchContains means the normalized candidate contained the normalized
	// target as a substring. Always a pass with score 100.
	MatchContains MatchType = "contains"

	// MatchSimilarity means the candidate passed via edit-distance accuracy.
	MatchSimilarity MatchType = "similarity"

	// MatchFail means the candidate did not pass.
	MatchFail MatchType = "fail"
)

// Result is the outcome of a single evaluation. Results are produced fresh
// per call and never persisted.
type Result struct {
	// Score is the accuracy in the range [0, 100].
	Score int `json:"score"`

	// Passed reports whether the candidate is accepted for the target.
	Passed bool `json:"passed"`

	// Match classifies which rule decided the outcome.
	Match MatchType `json:"match"`
}

// Option is a functional option for configuring an [Evaluator].
type Option func(*Evaluator)

// WithPassThreshold sets the minimum similarity score (percent, inclusive)
// required for a similarity match to pass. Default: 70.
func WithPassThreshold(threshold int) Option {
	return func(e *Evaluator) {
		e.passThreshold = threshold
	}
}

// Evaluator scores candidate transcripts against target phrases.
// It is read-only after construction and safe for concurrent use.
type Evaluator struct {
	passThreshold int
}

// New returns an [Evaluator] configured with the supplied options.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{passThreshold: defaultPassThreshold}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate scores candidate against target. Both inputs are normalized
// identically before comparison; if either normalizes to the empty string
// the result is a zero-score fail.
func (e *Evaluator) Evaluate(target, candidate string) Result {
	nt := Normalize(target)
	nc := Normalize(candidate)

	if nt == "" || nc == "" {
		return Result{Score: 0, Passed: false, Match: MatchFail}
	}

	if strings.Contains(nc, nt) {
		return Result{Score: 100, Passed: true, Match: MatchContains}
	}

	distance := matchr.Levenshtein(nt, nc)
	maxLen := len([]rune(nt))
	if l := len([]rune(nc)); l > maxLen {
		maxLen = l
	}

	accuracy := float64(maxLen-distance) / float64(maxLen) * 100
	sc := int(math.Round(accuracy))
	if sc < 0 {
		sc = 0
	}

	if sc >= e.passThreshold {
		return Result{Score: sc, Passed: true, Match: MatchSimilarity}
	}
	return Result{Score: sc, Passed: false, Match: MatchFail}
}

// Evaluate scores candidate against target using the default pass threshold.
func Evaluate(target, candidate string) Result {
	return defaultEvaluator.Evaluate(target, candidate)
}

var defaultEvaluator = New()

// Normalize lowercases s, strips the fixed punctuation set, and removes all
// whitespace. Applying Normalize twice yields the same string as applying it
// once.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	lowered := strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, lowered)
}
