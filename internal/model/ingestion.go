package model

import "time"

// IngestionStatus is the lifecycle of one ingestion run.
type IngestionStatus string

const (
	IngestionRunning  IngestionStatus = "running"
	IngestionComplete IngestionStatus = "complete"
	IngestionFailed   IngestionStatus = "failed"
)

// Ingestion is the audit record of one file ingestion run.
type Ingestion struct {
	ID         string            `json:"id"`
	SourceFile string            `json:"source_file"`
	Status     IngestionStatus   `json:"status"`
	Summary    *IngestionSummary `json:"summary,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// RowError records a row-level failure. Row errors never abort the file.
type RowError struct {
	RowIndex int    `json:"row_index"`
	Message  string `json:"message"`
}

// IngestionSummary is the sole result of processing a file. Every row ends
// up in exactly one counter.
type IngestionSummary struct {
	IngestionID      string     `json:"ingestion_id,omitempty"`
	SourceFile       string     `json:"source_file"`
	RowsProcessed    int        `json:"rows_processed"`
	AutoResolved     int        `json:"auto_resolved"`
	Created          int        `json:"created"`
	Queued           int        `json:"queued"`
	AlreadyProcessed int        `json:"already_processed"`
	Failed           int        `json:"failed"`
	Errors           []RowError `json:"errors,omitempty"`
}

// OutcomeKind is the terminal result of processing one candidate record.
type OutcomeKind string

const (
	OutcomeCommittedMatch OutcomeKind = "committed_match"
	OutcomeCommittedNew   OutcomeKind = "committed_new"
	OutcomePending        OutcomeKind = "pending"
	OutcomeDuplicate      OutcomeKind = "duplicate"
	OutcomeFailed         OutcomeKind = "failed"
)

// Outcome routes a processed row: committed entity, queued review item,
// already-processed duplicate, or failure.
type Outcome struct {
	Kind         OutcomeKind `json:"kind"`
	EntityID     string      `json:"entity_id,omitempty"`
	ReviewItemID string      `json:"review_item_id,omitempty"`
	Err          error       `json:"-"`
}
