// Package store keeps finished pipeline runs so they can be fetched by run id
// after the response that produced them has ended.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ravi-parthasarathy/codecrew/pkg/agents"
	"github.com/ravi-parthasarathy/codecrew/pkg/pipeline"
	"github.com/ravi-parthasarathy/codecrew/pkg/stream"
)

// ErrNotFound is returned by Get for an unknown or expired run id.
var ErrNotFound = errors.New("store: run not found")

// Record is one finished run, successful or not. On failure Summary holds
// whatever the stages before the failure produced.
type Record struct {
	RunID        string         `json:"runId"`
	State        pipeline.State `json:"state"`
	Requirements string         `json:"requirements"`
	Model        string         `json:"model,omitempty"`
	FailedStage  agents.Stage   `json:"failedStage,omitempty"`
	Error        string         `json:"error,omitempty"`
	*stream.Summary
	Results    []agents.StageResult `json:"results,omitempty"`
	FinishedAt time.Time            `json:"finishedAt"`
}

// Store saves and loads run records. Implementations must be safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, runID string) (Record, error)
}

// NewRecord builds the record of a run from its request, outcome and error.
func NewRecord(req pipeline.Request, out *pipeline.Outcome, runErr error) Record {
	rec := Record{
		RunID:        req.RunID,
		Requirements: req.Requirements,
		Model:        req.Model,
		FinishedAt:   time.Now().UTC(),
	}
	if out != nil {
		rec.RunID = out.RunID
		rec.State = out.State
		rec.FailedStage = out.FailedStage
		rec.Summary = stream.SummaryOf(out)
		rec.Results = out.Results
	}
	if runErr != nil {
		rec.Error = runErr.Error()
		if rec.State == "" {
			rec.State = pipeline.StateFailed
		}
	}
	return rec
}
