package model

import "time"

// Run statuses recorded in the journal.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// RunRecord describes one invocation of the pipeline.
type RunRecord struct {
	ID             string      `json:"id"`
	Status         string      `json:"status"`
	IterationStart int64       `json:"iteration_start"`
	Chunksize      int64       `json:"chunksize"`
	TotalRows      int64       `json:"total_rows"`
	Params         QueryParams `json:"params"`
	StartedAt      time.Time   `json:"started_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// ChunkRecord is the telemetry of one appended chunk.
type ChunkRecord struct {
	RunID    string `json:"run_id"`
	Chunk    Chunk  `json:"chunk"`
	Records  int    `json:"records"`
	Failures int    `json:"failures"`
	// Duplicates counts measurements dropped because an earlier chunk stored the same key.
	Duplicates int       `json:"duplicates"`
	Workers    int       `json:"workers"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// Elapsed returns how long the chunk took from dispatch to append.
func (c ChunkRecord) Elapsed() time.Duration { return c.EndedAt.Sub(c.StartedAt) }

// FailureRecord is a journaled RowFailure.
type FailureRecord struct {
	RunID      string     `json:"run_id"`
	ChunkIndex int64      `json:"chunk_index"`
	Failure    RowFailure `json:"failure"`
	CreatedAt  time.Time  `json:"created_at"`
}
