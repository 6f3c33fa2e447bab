package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tradecraft-foods/reconcile-cli/internal/match"
	"github.com/tradecraft-foods/reconcile-cli/internal/model"
	"github.com/tradecraft-foods/reconcile-cli/internal/normalize"
	"github.com/tradecraft-foods/reconcile-cli/internal/policy"
	"github.com/tradecraft-foods/reconcile-cli/internal/store"
	"github.com/tradecraft-foods/reconcile-cli/pkg/graphstore"
)

// Pipeline processes submission files row by row: normalize, match against
// the existing entity pool, decide, and apply the resulting intent.
type Pipeline struct {
	store      store.Store
	graph      graphstore.Client
	matcher    *match.Matcher
	thresholds policy.Thresholds
	ftpTimeout time.Duration
	log        *zap.Logger
}

// New creates a Pipeline. thresholds must already be validated.
func New(st store.Store, graph graphstore.Client, matcher *match.Matcher, thresholds policy.Thresholds, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:      st,
		graph:      graph,
		matcher:    matcher,
		thresholds: thresholds,
		ftpTimeout: 30 * time.Second,
		log:        zap.L(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithFTPTimeout sets the dial timeout used for ftp:// submission sources.
func WithFTPTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.ftpTimeout = d }
}

// WithLogger sets the pipeline logger.
func WithLogger(log *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = log }
}

// fileState carries the per-file working set: one entity pool snapshot per
// type, fetched lazily on first use, and a dedup index of entities committed
// earlier in the same batch so identical new rows reuse one entity.
type fileState struct {
	pools map[model.EntityType][]model.Entity
	batch map[string]string // normalized (type, name) -> entity id
}

func newFileState() *fileState {
	return &fileState{
		pools: make(map[model.EntityType][]model.Entity),
		batch: make(map[string]string),
	}
}

func (fs *fileState) pool(ctx context.Context, graph graphstore.Client, typ model.EntityType) ([]model.Entity, error) {
	if pool, ok := fs.pools[typ]; ok {
		return pool, nil
	}
	pool, err := graph.QueryEntities(ctx, typ)
	if err != nil {
		return nil, err
	}
	fs.pools[typ] = pool
	return pool, nil
}

func (fs *fileState) append(typ model.EntityType, ent model.Entity) {
	fs.pools[typ] = append(fs.pools[typ], ent)
}

func batchKey(typ model.EntityType, name string) string {
	return string(typ) + "\x00" + name
}

// IngestFile processes one submission file and returns its summary. Row
// errors are recorded in the summary and never abort the file; only file
// level failures (unreadable file, missing header column, context
// cancellation) return an error.
func (p *Pipeline) IngestFile(ctx context.Context, sourceFile string) (*model.IngestionSummary, error) {
	ing, err := p.store.CreateIngestion(ctx, sourceFile)
	if err != nil {
		return nil, err
	}

	summary := &model.IngestionSummary{IngestionID: ing.ID, SourceFile: sourceFile}
	state := newFileState()

	rowCh, errCh := streamRows(ctx, sourceFile, p.ftpTimeout)
	for row := range rowCh {
		summary.RowsProcessed++

		var outcome model.Outcome
		if row.err != nil {
			outcome = model.Outcome{Kind: model.OutcomeFailed, Err: row.err}
		} else {
			outcome = p.processRow(ctx, row.rec, state)
		}

		switch outcome.Kind {
		case model.OutcomeCommittedMatch:
			summary.AutoResolved++
		case model.OutcomeCommittedNew:
			summary.Created++
		case model.OutcomePending:
			summary.Queued++
		case model.OutcomeDuplicate:
			summary.AlreadyProcessed++
		case model.OutcomeFailed:
			summary.Failed++
			summary.Errors = append(summary.Errors, model.RowError{
				RowIndex: row.rec.RowIndex,
				Message:  outcome.Err.Error(),
			})
			p.log.Warn("row failed",
				zap.String("source_file", sourceFile),
				zap.Int("row_index", row.rec.RowIndex),
				zap.Error(outcome.Err))
		}

		if ctx.Err() != nil {
			break
		}
	}

	if streamErr := <-errCh; streamErr != nil {
		if err := p.store.CompleteIngestion(ctx, ing.ID, model.IngestionFailed, summary); err != nil {
			p.log.Error("complete ingestion", zap.String("id", ing.ID), zap.Error(err))
		}
		return summary, streamErr
	}

	if err := p.store.CompleteIngestion(ctx, ing.ID, model.IngestionComplete, summary); err != nil {
		return summary, err
	}

	p.log.Info("file ingested",
		zap.String("source_file", sourceFile),
		zap.Int("rows", summary.RowsProcessed),
		zap.Int("auto_resolved", summary.AutoResolved),
		zap.Int("created", summary.Created),
		zap.Int("queued", summary.Queued),
		zap.Int("already_processed", summary.AlreadyProcessed),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func (p *Pipeline) processRow(ctx context.Context, raw model.RawRecord, state *fileState) model.Outcome {
	rec := normalize.Record(raw)
	if !rec.Type.Valid() {
		return model.Outcome{Kind: model.OutcomeFailed, Err: fmt.Errorf("unknown entity type %q", raw.Type)}
	}

	pool, err := state.pool(ctx, p.graph, rec.Type)
	if err != nil {
		return model.Outcome{Kind: model.OutcomeFailed, Err: err}
	}

	matches := p.matcher.Match(rec, pool)
	intent := policy.Decide(matches, p.thresholds)

	switch intent.Kind {
	case policy.IntentAutoResolve:
		if err := p.graph.CommitMatch(ctx, rec, intent.Target.EntityID); err != nil {
			return model.Outcome{Kind: model.OutcomeFailed, Err: err}
		}
		p.log.Debug("auto-resolved",
			zap.String("name", rec.Name),
			zap.String("entity_id", intent.Target.EntityID),
			zap.Float64("score", intent.Target.Score))
		return model.Outcome{Kind: model.OutcomeCommittedMatch, EntityID: intent.Target.EntityID}

	case policy.IntentCreateNew:
		key := batchKey(rec.Type, rec.Name)
		if id, ok := state.batch[key]; ok {
			// An identical row earlier in this batch already created the
			// entity; link this row to it instead of creating a twin.
			if err := p.graph.CommitMatch(ctx, rec, id); err != nil {
				return model.Outcome{Kind: model.OutcomeFailed, Err: err}
			}
			return model.Outcome{Kind: model.OutcomeCommittedMatch, EntityID: id}
		}

		id, err := p.graph.CommitEntity(ctx, graphstore.EntitySpec{
			Type:    rec.Type,
			Name:    rec.Name,
			Country: rec.Country,
			Aliases: []string{rec.Raw.Name},
		})
		if err != nil {
			return model.Outcome{Kind: model.OutcomeFailed, Err: err}
		}
		state.batch[key] = id
		state.append(rec.Type, model.Entity{
			ID:      id,
			Type:    rec.Type,
			Name:    rec.Name,
			Country: rec.Country,
			Aliases: []string{rec.Raw.Name},
		})
		p.log.Debug("entity created", zap.String("name", rec.Name), zap.String("entity_id", id))
		return model.Outcome{Kind: model.OutcomeCommittedNew, EntityID: id}

	default: // policy.IntentReview
		item := &model.ReviewItem{
			SourceFile: rec.SourceFile,
			RowIndex:   rec.RowIndex,
			Candidate:  rec,
			Matches:    intent.Proposals,
			TopScore:   intent.Proposals[0].Score,
		}
		created, err := p.store.CreateReviewItem(ctx, item)
		if err != nil {
			return model.Outcome{Kind: model.OutcomeFailed, Err: err}
		}
		if !created {
			return model.Outcome{Kind: model.OutcomeDuplicate}
		}
		return model.Outcome{Kind: model.OutcomePending, ReviewItemID: item.ID}
	}
}

// IngestFiles processes several files concurrently, one pipeline pass per
// file. It returns the per-file summaries in input order. A file-level error
// cancels the remaining files.
func (p *Pipeline) IngestFiles(ctx context.Context, files []string, concurrency int) ([]*model.IngestionSummary, error) {
	if concurrency <= 0 {
		concurrency = 4
	}

	summaries := make([]*model.IngestionSummary, len(files))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, file := range files {
		g.Go(func() error {
			summary, err := p.IngestFile(gctx, file)
			mu.Lock()
			summaries[i] = summary
			mu.Unlock()
			if err != nil {
				return eris.Wrapf(err, "ingest %s", file)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summaries, err
	}
	return summaries, nil
}
