package history

import (
	"context"
	"time"
)

// Noop discards runs. Used when no history store is configured.
type Noop struct{}

func (Noop) RecordRun(context.Context, Run) error { return nil }

func (Noop) RecentRuns(context.Context, int) ([]Run, error) { return nil, nil }

func (Noop) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

func (Noop) Close() error { return nil }
