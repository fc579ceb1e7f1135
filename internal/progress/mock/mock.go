// Package mock provides a test double for the progress package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/42Seoul/Speak-King-Korean-LMS/internal/progress"
)

// ReportCall records the arguments of one ReportSessionComplete call.
type ReportCall struct {
	StudySetID string
	Stats      progress.Stats
}

// Reporter is a mock implementation of progress.Reporter.
type Reporter struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every ReportSessionComplete call.
	Err error

	// Calls records every report in order.
	Calls []ReportCall
}

// Compile-time interface check.
var _ progress.Reporter = (*Reporter)(nil)

// ReportSessionComplete records the call.
func (r *Reporter) ReportSessionComplete(_ context.Context, studySetID string, stats progress.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, ReportCall{StudySetID: studySetID, Stats: stats})
	return r.Err
}

// CallCount returns the number of reports received. Thread-safe.
func (r *Reporter) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// LastCall returns the most recent report, or the zero value if none.
// Thread-safe.
func (r *Reporter) LastCall() ReportCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Calls) == 0 {
		return ReportCall{}
	}
	return r.Calls[len(r.Calls)-1]
}
