// Package review exposes the operations reviewers perform on queued items:
// listing, inspecting, deciding, and bulk-approving high-confidence matches.
package review

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
	"github.com/tradecraft-foods/reconcile-cli/internal/store"
	"github.com/tradecraft-foods/reconcile-cli/pkg/graphstore"
)

// ErrInvalidDecision reports a decision rejected before any commit: a missing
// or unproposed entity id, or an unknown decision kind.
var ErrInvalidDecision = eris.New("invalid decision")

// Service applies reviewer decisions. The graph commit always happens before
// the local status flip: a gateway failure leaves the item pending so the
// decision can simply be retried.
type Service struct {
	store store.Store
	graph graphstore.Client
	log   *zap.Logger
}

// NewService creates a review Service.
func NewService(st store.Store, graph graphstore.Client) *Service {
	return &Service{store: st, graph: graph, log: zap.L()}
}

// List returns review items matching the filter.
func (s *Service) List(ctx context.Context, filter store.ReviewFilter) ([]model.ReviewItem, error) {
	return s.store.ListReviewItems(ctx, filter)
}

// Get returns one review item by id.
func (s *Service) Get(ctx context.Context, id string) (*model.ReviewItem, error) {
	return s.store.GetReviewItem(ctx, id)
}

// Apply executes a decision on a pending review item and returns the updated
// item. It returns store.ErrInvalidState when the item is already decided and
// store.ErrNotFound when it does not exist.
func (s *Service) Apply(ctx context.Context, id string, dec model.Decision) (*model.ReviewItem, error) {
	item, err := s.store.GetReviewItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != model.ReviewPending {
		return nil, eris.Wrapf(store.ErrInvalidState, "review: item %s is %s", id, item.Status)
	}

	var status model.ReviewStatus
	var entityID string

	switch dec.Kind {
	case model.DecisionApproveMatch:
		if dec.EntityID == "" {
			return nil, eris.Wrap(ErrInvalidDecision, "review: approve_match requires an entity id")
		}
		if !dec.Override && !proposed(item.Matches, dec.EntityID) {
			return nil, eris.Wrapf(ErrInvalidDecision, "review: entity %s is not a proposed match for item %s", dec.EntityID, id)
		}
		if err := s.graph.CommitMatch(ctx, item.Candidate, dec.EntityID); err != nil {
			return nil, err
		}
		status = model.ReviewApprovedMatch
		entityID = dec.EntityID

	case model.DecisionApproveNew:
		newID, err := s.graph.CommitEntity(ctx, graphstore.EntitySpec{
			Type:    item.Candidate.Type,
			Name:    item.Candidate.Name,
			Country: item.Candidate.Country,
			Aliases: []string{item.Candidate.Raw.Name},
		})
		if err != nil {
			return nil, err
		}
		status = model.ReviewApprovedNew
		entityID = newID

	case model.DecisionIgnore:
		status = model.ReviewIgnored

	default:
		return nil, eris.Wrapf(ErrInvalidDecision, "review: unknown decision kind %q", dec.Kind)
	}

	if err := s.store.MarkDecided(ctx, id, status, dec.DecidedBy, entityID); err != nil {
		return nil, err
	}

	s.log.Info("review item decided",
		zap.String("id", id),
		zap.String("status", string(status)),
		zap.String("entity_id", entityID),
		zap.String("decided_by", dec.DecidedBy))

	return s.store.GetReviewItem(ctx, id)
}

// BatchResult is the per-item outcome of a batch approval.
type BatchResult struct {
	ItemID   string `json:"item_id"`
	EntityID string `json:"entity_id,omitempty"`
	Err      string `json:"error,omitempty"`
}

// batchApprovePageSize bounds each pending-item query during a batch approval.
const batchApprovePageSize = 200

// BatchApprove applies approve_match with the top proposal to every pending
// item whose top score is at least minConfidence. Item failures are reported
// per item and do not stop the batch.
func (s *Service) BatchApprove(ctx context.Context, minConfidence float64, decidedBy string) ([]BatchResult, error) {
	var results []BatchResult

	// Approved items leave the pending set, so each page is re-queried from
	// the front; the offset pages past items that stayed pending (failures
	// and items without proposals) so they are not revisited.
	stillPending := 0
	for {
		items, err := s.store.ListReviewItems(ctx, store.ReviewFilter{
			Status:   model.ReviewPending,
			MinScore: minConfidence,
			Limit:    batchApprovePageSize,
			Offset:   stillPending,
		})
		if err != nil {
			return results, err
		}
		if len(items) == 0 {
			return results, nil
		}

		for _, item := range items {
			if len(item.Matches) == 0 {
				stillPending++
				continue
			}
			top := item.Matches[0]

			_, err := s.Apply(ctx, item.ID, model.Decision{
				Kind:      model.DecisionApproveMatch,
				EntityID:  top.EntityID,
				DecidedBy: decidedBy,
			})
			res := BatchResult{ItemID: item.ID, EntityID: top.EntityID}
			if err != nil {
				res.Err = err.Error()
				res.EntityID = ""
				stillPending++
				s.log.Warn("batch approve item failed", zap.String("id", item.ID), zap.Error(err))
			}
			results = append(results, res)

			if ctx.Err() != nil {
				return results, eris.Wrap(ctx.Err(), "review: batch approve cancelled")
			}
		}

		if len(items) < batchApprovePageSize {
			return results, nil
		}
	}
}

func proposed(matches []model.Match, entityID string) bool {
	for _, m := range matches {
		if m.EntityID == entityID {
			return true
		}
	}
	return false
}
