package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS ingestions (
	id          TEXT PRIMARY KEY,
	source_file TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	summary     TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS review_items (
	id                 TEXT PRIMARY KEY,
	source_file        TEXT NOT NULL,
	row_index          INTEGER NOT NULL,
	item_type          TEXT NOT NULL,
	candidate          TEXT NOT NULL,
	matches            TEXT NOT NULL,
	top_score          REAL NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'pending',
	decided_by         TEXT,
	decided_at         DATETIME,
	resolved_entity_id TEXT,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (source_file, row_index)
);

CREATE INDEX IF NOT EXISTS idx_review_items_status ON review_items(status);
CREATE INDEX IF NOT EXISTS idx_review_items_item_type ON review_items(item_type);
CREATE INDEX IF NOT EXISTS idx_review_items_top_score ON review_items(top_score);
CREATE INDEX IF NOT EXISTS idx_ingestions_source_file ON ingestions(source_file);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateIngestion(ctx context.Context, sourceFile string) (*model.Ingestion, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingestions (id, source_file, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, sourceFile, string(model.IngestionRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert ingestion")
	}

	return &model.Ingestion{
		ID:         id,
		SourceFile: sourceFile,
		Status:     model.IngestionRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *SQLiteStore) CompleteIngestion(ctx context.Context, id string, status model.IngestionStatus, summary *model.IngestionSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE ingestions SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		string(status), string(summaryJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete ingestion %s", id)
	}
	return checkFound(res)
}

func (s *SQLiteStore) GetIngestion(ctx context.Context, id string) (*model.Ingestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_file, status, summary, created_at, updated_at FROM ingestions WHERE id = ?`,
		id,
	)

	var ing model.Ingestion
	var summaryJSON sql.NullString
	err := row.Scan(&ing.ID, &ing.SourceFile, &ing.Status, &summaryJSON, &ing.CreatedAt, &ing.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: ingestion %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan ingestion")
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		ing.Summary = &model.IngestionSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), ing.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &ing, nil
}

func (s *SQLiteStore) CreateReviewItem(ctx context.Context, item *model.ReviewItem) (bool, error) {
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
		return false, eris.Wrap(err, "sqlite: marshal candidate")
	}
	matchesJSON, err := json.Marshal(item.Matches)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal matches")
	}

	// INSERT OR IGNORE leans on the (source_file, row_index) uniqueness
	// constraint: a duplicate insert affects zero rows instead of failing,
	// which makes re-ingestion of the same file safe to repeat.
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO review_items
		 (id, source_file, row_index, item_type, candidate, matches, top_score, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.SourceFile, item.RowIndex, string(item.Candidate.Type),
		string(candidateJSON), string(matchesJSON), item.TopScore, string(item.Status), item.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert review item")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetReviewItem(ctx context.Context, id string) (*model.ReviewItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM review_items WHERE id = ?`, id)
	item, err := scanReviewItem(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: review item %s", id)
	}
	return item, err
}

func (s *SQLiteStore) ListReviewItems(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error) {
	query := `SELECT ` + reviewColumns + ` FROM review_items WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		query += ` AND item_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.SourceFile != "" {
		query += ` AND source_file = ?`
		args = append(args, filter.SourceFile)
	}
	if filter.Search != "" {
		query += ` AND candidate LIKE '%' || ? || '%'`
		args = append(args, filter.Search)
	}
	if filter.MinScore > 0 {
		query += ` AND top_score >= ?`
		args = append(args, filter.MinScore)
	}
	query += ` ORDER BY created_at DESC, source_file, row_index`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list review items")
	}
	defer rows.Close()

	var items []model.ReviewItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list review items iterate")
}

func (s *SQLiteStore) MarkDecided(ctx context.Context, id string, status model.ReviewStatus, decidedBy, entityID string) error {
	if !status.Terminal() {
		return eris.Errorf("sqlite: %q is not a terminal review status", status)
	}

	// The status precondition lives inside the UPDATE itself so that two
	// concurrent decisions on the same item cannot both succeed.
	res, err := s.db.ExecContext(ctx,
		`UPDATE review_items
		 SET status = ?, decided_by = ?, decided_at = ?, resolved_entity_id = ?
		 WHERE id = ? AND status = ?`,
		string(status), nullable(decidedBy), time.Now().UTC(), nullable(entityID),
		id, string(model.ReviewPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark decided %s", id)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		if _, getErr := s.GetReviewItem(ctx, id); getErr != nil {
			return getErr
		}
		return eris.Wrapf(ErrInvalidState, "sqlite: review item %s", id)
	}
	return nil
}

// helpers

const reviewColumns = `id, source_file, row_index, candidate, matches, top_score, status, decided_by, decided_at, resolved_entity_id, created_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanReviewItem(row scannable) (*model.ReviewItem, error) {
	var item model.ReviewItem
	var candidateJSON, matchesJSON string
	var decidedBy, resolvedEntityID sql.NullString
	var decidedAt sql.NullTime

	err := row.Scan(&item.ID, &item.SourceFile, &item.RowIndex, &candidateJSON, &matchesJSON,
		&item.TopScore, &item.Status, &decidedBy, &decidedAt, &resolvedEntityID, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan review item")
	}

	if err := json.Unmarshal([]byte(candidateJSON), &item.Candidate); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal candidate")
	}
	if err := json.Unmarshal([]byte(matchesJSON), &item.Matches); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal matches")
	}
	if decidedBy.Valid {
		item.DecidedBy = &decidedBy.String
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		item.DecidedAt = &t
	}
	if resolvedEntityID.Valid {
		item.ResolvedEntityID = resolvedEntityID.String
	}
	return &item, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Wrap(ErrNotFound, "store: update")
	}
	return nil
}
