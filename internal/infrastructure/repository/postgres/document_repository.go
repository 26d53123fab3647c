package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phennig/dms-pipeline/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2025103001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT,
	location TEXT,
	author TEXT,
	creation_date TIMESTAMPTZ,
	original_file_name TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	bucket TEXT NOT NULL,
	object_key TEXT NOT NULL,
	summary TEXT,
	created_utc TIMESTAMPTZ NOT NULL,
	updated_utc TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_created_utc ON documents(created_utc DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, title, location, author, creation_date, original_file_name, content_type, size_bytes, bucket, object_key, summary, created_utc, updated_utc
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		doc.ID, nullString(doc.Title), nullString(doc.Location), nullString(doc.Author), doc.CreationDate,
		doc.OriginalFileName, doc.ContentType, doc.SizeBytes, doc.Bucket, doc.ObjectKey,
		nullString(doc.Summary), doc.CreatedUtc, doc.UpdatedUtc,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, location, author, creation_date, original_file_name, content_type, size_bytes, bucket, object_key, summary, created_utc, updated_utc
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var title, location, author, summary sql.NullString
	var creationDate sql.NullTime

	err := row.Scan(
		&doc.ID, &title, &location, &author, &creationDate,
		&doc.OriginalFileName, &doc.ContentType, &doc.SizeBytes, &doc.Bucket, &doc.ObjectKey,
		&summary, &doc.CreatedUtc, &doc.UpdatedUtc,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", err)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.Title = title.String
	doc.Location = location.String
	doc.Author = author.String
	doc.Summary = summary.String
	if creationDate.Valid {
		t := creationDate.Time
		doc.CreationDate = &t
	}
	return &doc, nil
}

// UpdateSummary is last-write-wins; the worker pipeline is the only writer of
// this column.
func (r *DocumentRepository) UpdateSummary(ctx context.Context, id string, summary string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET summary = $2, updated_utc = $3
WHERE id = $1
`, id, summary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document summary: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document summary rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document summary", sql.ErrNoRows)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
