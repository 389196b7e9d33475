package usage

import (
	"context"
	"time"
)

// Record is one completed generation: who asked, what ran, what it cost.
type Record struct {
	ID           string
	ProjectID    string
	RequestID    string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	LatencyMs    int64
	CreatedAt    time.Time
}

type Store interface {
	Log(ctx context.Context, rec *Record) error
	ListByProject(ctx context.Context, projectID string, from, to time.Time) ([]*Record, error)
	TotalCostByProject(ctx context.Context, projectID string, from, to time.Time) (float64, error)
}
