package history

import (
	"context"
	"time"
)

type Run struct {
	RunID      string
	Scenario   string
	Status     string
	Seconds    float64
	StartedAt  time.Time
	ResultFile string
	Error      string
	RecordedAt time.Time
}

// Recorder persists the outcome of every benchmark run.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, filter ListFilter) ([]Run, error)
}

type ListFilter struct {
	Scenario string
	Limit    int
}

const DefaultListLimit = 20

// Nop discards runs when no history database is configured.
type Nop struct{}

func (Nop) RecordRun(context.Context, Run) error { return nil }

func (Nop) ListRuns(context.Context, ListFilter) ([]Run, error) { return nil, nil }
