// Package progress defines the reporting boundary the practice session engine
// hands its final statistics to.
//
// The session engine calls [Reporter.ReportSessionComplete] exactly once per
// finished session and treats failure as non-fatal: the learner's session is
// complete either way, and a failed report is logged rather than retried.
package progress

import "context"

// Stats are the aggregate outcomes of one finished practice session.
type Stats struct {
	// Spoken is the number of items passed by speaking.
	Spoken int `json:"spoken"`

	// Skipped is the number of items abandoned via the skip control.
	Skipped int `json:"skipped"`
}

// Reporter receives the final statistics of a finished practice session.
type Reporter interface {
	// ReportSessionComplete records one finished session for a study set.
	// Implementations own any downstream effects (cumulative totals,
	// assignment completion); the session engine only supplies raw stats.
	ReportSessionComplete(ctx context.Context, studySetID string, stats Stats) error
}

// ReporterFunc adapts a function to the [Reporter] interface.
type ReporterFunc func(ctx context.Context, studySetID string, stats Stats) error

// ReportSessionComplete calls f.
func (f ReporterFunc) ReportSessionComplete(ctx context.Context, studySetID string, stats Stats) error {
	return f(ctx, studySetID, stats)
}
