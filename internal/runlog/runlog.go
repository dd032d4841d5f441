// Package runlog records a summary of every hashing run. Only counts, file
// locations and timings are stored, never identity values or digests.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/audience-hasher/internal/audience"
)

// Run outcomes.
const (
	StatusSucceeded = "succeeded"
	StatusEmpty     = "empty"
	StatusFailed    = "failed"
)

// Entry summarizes one run.
type Entry struct {
	ID                  uuid.UUID      `json:"id" bson:"-"`
	Command             string         `json:"command" bson:"command"`
	Source              string         `json:"source" bson:"source"`
	Output              string         `json:"output,omitempty" bson:"output,omitempty"`
	RowsIn              int            `json:"rows_in" bson:"rows_in"`
	RowsFiltered        int            `json:"rows_filtered" bson:"rows_filtered"`
	RowsOut             int            `json:"rows_out" bson:"rows_out"`
	Duplicates          int            `json:"duplicates" bson:"duplicates"`
	UnresolvedCountries int            `json:"unresolved_countries" bson:"unresolved_countries"`
	Malformed           int            `json:"malformed" bson:"malformed"`
	MatchKinds          map[string]int `json:"match_kinds,omitempty" bson:"match_kinds,omitempty"`
	Status              string         `json:"status" bson:"status"`
	Error               string         `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt           time.Time      `json:"started_at" bson:"started_at"`
	FinishedAt          time.Time      `json:"finished_at" bson:"finished_at"`
}

// NewEntry starts an entry for a run of command over source.
func NewEntry(command, source string) Entry {
	return Entry{
		ID:        uuid.New(),
		Command:   command,
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
}

// ApplyStats copies pipeline counters into the entry.
func (e *Entry) ApplyStats(s audience.Stats) {
	e.RowsIn = s.InputRows
	e.RowsFiltered = s.FilteredRows
	e.RowsOut = s.OutputRows
	e.Duplicates = s.DuplicateRows
	e.UnresolvedCountries = s.UnresolvedCountries
	e.Malformed = s.MalformedValues
	if len(s.MatchKinds) > 0 {
		e.MatchKinds = make(map[string]int, len(s.MatchKinds))
		for k, v := range s.MatchKinds {
			e.MatchKinds[k] = v
		}
	}
}

// Finish stamps the end time and derives the status from err.
func (e *Entry) Finish(err error) {
	e.FinishedAt = time.Now().UTC()
	switch {
	case err == nil:
		e.Status = StatusSucceeded
	case errors.Is(err, audience.ErrEmptyResult):
		e.Status = StatusEmpty
	default:
		e.Status = StatusFailed
		e.Error = err.Error()
	}
}

// Duration is the wall time of the run.
func (e Entry) Duration() time.Duration {
	if e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Recorder persists run entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// Multi fans an entry out to several recorders. Every recorder is tried;
// failures are joined.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", r, err))
		}
	}
	return errors.Join(errs...)
}
