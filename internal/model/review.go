package model

import "time"

// ReviewStatus is the state of a review item. Items start pending and move
// to exactly one terminal state; terminal states are never left.
type ReviewStatus string

const (
	ReviewPending       ReviewStatus = "pending"
	ReviewApprovedMatch ReviewStatus = "approved_match"
	ReviewApprovedNew   ReviewStatus = "approved_new"
	ReviewIgnored       ReviewStatus = "ignored"
)

// Terminal reports whether s is a decided state.
func (s ReviewStatus) Terminal() bool {
	switch s {
	case ReviewApprovedMatch, ReviewApprovedNew, ReviewIgnored:
		return true
	default:
		return false
	}
}

// ReviewItem is a persisted unit of pending human work. Exactly one item
// exists per (source_file, row_index); the store enforces this.
type ReviewItem struct {
	ID         string          `json:"id"`
	SourceFile string          `json:"source_file"`
	RowIndex   int             `json:"row_index"`
	Candidate  CandidateRecord `json:"candidate"`
	Matches    []Match         `json:"matches"`
	TopScore   float64         `json:"top_score"`
	Status     ReviewStatus    `json:"status"`

	DecidedBy *string    `json:"decided_by,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`

	// ResolvedEntityID is the graph entity the item resolved to, set on
	// approved_match (the chosen match) and approved_new (the created entity).
	ResolvedEntityID string `json:"resolved_entity_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DecisionKind enumerates the reviewer actions.
type DecisionKind string

const (
	DecisionApproveMatch DecisionKind = "approve_match"
	DecisionApproveNew   DecisionKind = "approve_new"
	DecisionIgnore       DecisionKind = "ignore"
)

// Decision is a reviewer's verdict on a pending item.
type Decision struct {
	Kind DecisionKind `json:"kind"`

	// EntityID is required for approve_match. It must be one of the item's
	// proposed matches unless Override is set.
	EntityID string `json:"entity_id,omitempty"`

	// Override permits matching to an entity outside the proposed list.
	Override bool `json:"override,omitempty"`

	DecidedBy string `json:"decided_by,omitempty"`
}
