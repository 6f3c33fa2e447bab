package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it,
// which lets the query layer be tested without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_ingestion":   `INSERT INTO ingestions (id, source_file, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_ingestion": `UPDATE ingestions SET status = $1, summary = $2, updated_at = $3 WHERE id = $4`,
	"get_ingestion":      `SELECT id, source_file, status, summary, created_at, updated_at FROM ingestions WHERE id = $1`,
	"get_review_item":    `SELECT ` + reviewColumns + ` FROM review_items WHERE id = $1`,
	"mark_decided": `UPDATE review_items SET status = $1, decided_by = $2, decided_at = $3, resolved_entity_id = $4
		 WHERE id = $5 AND status = 'pending'`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS ingestions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_file TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	summary     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS review_items (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_file        TEXT NOT NULL,
	row_index          INTEGER NOT NULL,
	item_type          TEXT NOT NULL,
	candidate          JSONB NOT NULL,
	matches            JSONB NOT NULL,
	top_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'pending',
	decided_by         TEXT,
	decided_at         TIMESTAMPTZ,
	resolved_entity_id TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_file, row_index)
);

CREATE INDEX IF NOT EXISTS idx_review_items_status ON review_items(status);
CREATE INDEX IF NOT EXISTS idx_review_items_item_type ON review_items(item_type);
CREATE INDEX IF NOT EXISTS idx_review_items_top_score ON review_items(top_score);
CREATE INDEX IF NOT EXISTS idx_ingestions_source_file ON ingestions(source_file);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateIngestion(ctx context.Context, sourceFile string) (*model.Ingestion, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingestions (id, source_file, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, sourceFile, string(model.IngestionRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert ingestion")
	}

	return &model.Ingestion{
		ID:         id,
		SourceFile: sourceFile,
		Status:     model.IngestionRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *PostgresStore) CompleteIngestion(ctx context.Context, id string, status model.IngestionStatus, summary *model.IngestionSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE ingestions SET status = $1, summary = $2, updated_at = $3 WHERE id = $4`,
		string(status), summaryJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete ingestion %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: ingestion %s", id)
	}
	return nil
}

func (s *PostgresStore) GetIngestion(ctx context.Context, id string) (*model.Ingestion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source_file, status, summary, created_at, updated_at FROM ingestions WHERE id = $1`,
		id,
	)

	var ing model.Ingestion
	var summaryJSON []byte
	err := row.Scan(&ing.ID, &ing.SourceFile, &ing.Status, &summaryJSON, &ing.CreatedAt, &ing.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: ingestion %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan ingestion")
	}
	if len(summaryJSON) > 0 {
		ing.Summary = &model.IngestionSummary{}
		if err := json.Unmarshal(summaryJSON, ing.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &ing, nil
}

func (s *PostgresStore) CreateReviewItem(ctx context.Context, item *model.ReviewItem) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Status == "" {
		item.Status = model.ReviewPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	candidateJSON, err := json.Marshal(item.Candidate)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal candidate")
	}
	matchesJSON, err := json.Marshal(item.Matches)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal matches")
	}

	// ON CONFLICT DO NOTHING makes re-ingestion of the same file safe:
	// a duplicate (source_file, row_index) affects zero rows instead of
	// failing the batch.
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO review_items
		 (id, source_file, row_index, item_type, candidate, matches, top_score, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (source_file, row_index) DO NOTHING`,
		item.ID, item.SourceFile, item.RowIndex, string(item.Candidate.Type),
		candidateJSON, matchesJSON, item.TopScore, string(item.Status), item.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert review item")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetReviewItem(ctx context.Context, id string) (*model.ReviewItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM review_items WHERE id = $1`, id)
	item, err := scanPgReviewItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: review item %s", id)
	}
	return item, err
}

func (s *PostgresStore) ListReviewItems(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conds = append(conds, "status = "+arg(string(filter.Status)))
	}
	if filter.Type != "" {
		conds = append(conds, "item_type = "+arg(string(filter.Type)))
	}
	if filter.SourceFile != "" {
		conds = append(conds, "source_file = "+arg(filter.SourceFile))
	}
	if filter.Search != "" {
		conds = append(conds, "candidate::text ILIKE '%' || "+arg(filter.Search)+" || '%'")
	}
	if filter.MinScore > 0 {
		conds = append(conds, "top_score >= "+arg(filter.MinScore))
	}

	query := `SELECT ` + reviewColumns + ` FROM review_items`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, source_file, row_index"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list review items")
	}
	defer rows.Close()

	var items []model.ReviewItem
	for rows.Next() {
		item, err := scanPgReviewItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list review items iterate")
}

func (s *PostgresStore) MarkDecided(ctx context.Context, id string, status model.ReviewStatus, decidedBy, entityID string) error {
	if !status.Terminal() {
		return eris.Errorf("postgres: %q is not a terminal review status", status)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE review_items SET status = $1, decided_by = $2, decided_at = $3, resolved_entity_id = $4
		 WHERE id = $5 AND status = 'pending'`,
		string(status), nullable(decidedBy), time.Now().UTC(), nullable(entityID), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark decided %s", id)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetReviewItem(ctx, id); getErr != nil {
			return getErr
		}
		return eris.Wrapf(ErrInvalidState, "postgres: review item %s", id)
	}
	return nil
}

type pgScannable interface {
	Scan(dest ...any) error
}

func scanPgReviewItem(row pgScannable) (*model.ReviewItem, error) {
	var item model.ReviewItem
	var candidateJSON, matchesJSON []byte
	var decidedBy, resolvedEntityID *string
	var decidedAt *time.Time

	err := row.Scan(&item.ID, &item.SourceFile, &item.RowIndex, &candidateJSON, &matchesJSON,
		&item.TopScore, &item.Status, &decidedBy, &decidedAt, &resolvedEntityID, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan review item")
	}

	if err := json.Unmarshal(candidateJSON, &item.Candidate); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal candidate")
	}
	if err := json.Unmarshal(matchesJSON, &item.Matches); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal matches")
	}
	item.DecidedBy = decidedBy
	item.DecidedAt = decidedAt
	if resolvedEntityID != nil {
		item.ResolvedEntityID = *resolvedEntityID
	}
	return &item, nil
}
