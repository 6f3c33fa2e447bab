// Package store persists review items and ingestion audit records. Two
// backends exist: sqlite (default, single-binary) and postgres.
package store

import (
	"context"
	"errors"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidState is returned when a decision targets a review item that is
// no longer pending. The item is left untouched.
var ErrInvalidState = errors.New("store: review item not pending")

// ReviewFilter specifies criteria for listing review items.
type ReviewFilter struct {
	Status     model.ReviewStatus `json:"status,omitempty"`
	Type       model.EntityType   `json:"type,omitempty"`
	Search     string             `json:"search,omitempty"`
	MinScore   float64            `json:"min_score,omitempty"`
	SourceFile string             `json:"source_file,omitempty"`
	Limit      int                `json:"limit,omitempty"`
	Offset     int                `json:"offset,omitempty"`
}

// Store is the persistence interface for the reconciliation engine.
type Store interface {
	// Ingestion audit trail
	CreateIngestion(ctx context.Context, sourceFile string) (*model.Ingestion, error)
	CompleteIngestion(ctx context.Context, id string, status model.IngestionStatus, summary *model.IngestionSummary) error
	GetIngestion(ctx context.Context, id string) (*model.Ingestion, error)

	// Review items. CreateReviewItem reports created=false when an item for
	// the same (source_file, row_index) already exists; re-ingesting a file
	// is therefore idempotent. MarkDecided performs the single conditional
	// update that moves a pending item to a terminal status and returns
	// ErrInvalidState when the item is already decided. Items are never
	// deleted.
	CreateReviewItem(ctx context.Context, item *model.ReviewItem) (created bool, err error)
	GetReviewItem(ctx context.Context, id string) (*model.ReviewItem, error)
	ListReviewItems(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error)
	MarkDecided(ctx context.Context, id string, status model.ReviewStatus, decidedBy, entityID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
