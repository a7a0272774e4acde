// Package history persists terminal piece.State snapshots so a CLI can
// inspect past runs. The engine itself never depends on this package: a
// history.Record is written only after PieceEngine.Run returns, keeping
// the engine's "only outward dependencies are Agent, DetectRuleIndex,
// AIJudge" invariant intact.
package history

import (
	"context"
	"time"
)

// Record is a terminal, read-only snapshot of a completed or aborted
// piece run.
type Record struct {
	RunID          string    `json:"runId"`
	PieceName      string    `json:"pieceName"`
	Task           string    `json:"task"`
	Status         string    `json:"status"`
	TerminalReason string    `json:"terminalReason"`
	Iteration      int       `json:"iteration"`
	StartedAt      time.Time `json:"startedAt"`
	EndedAt        time.Time `json:"endedAt"`
	LogFile        string    `json:"logFile"`
}

// Store persists and retrieves history Records.
type Store interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, runID string) (*Record, error)
	ListRecent(ctx context.Context, limit int) ([]*Record, error)
	Close() error
}
