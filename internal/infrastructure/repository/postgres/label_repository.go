package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ymatsuda/docsearch/internal/core/domain"
)

// LabelRepository is the read path into document label metadata. Ingestion
// writes the rows; the search core only ever selects.
type LabelRepository struct {
	db *sql.DB
}

func NewLabelRepository(db *sql.DB) *LabelRepository {
	return &LabelRepository{db: db}
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

// EnsureSchema creates the read-side table if ingestion has not run yet,
// so a fresh environment starts degraded instead of erroring.
func (r *LabelRepository) EnsureSchema(ctx context.Context) error {
	const query = `
CREATE TABLE IF NOT EXISTS document_labels (
	document_id TEXT PRIMARY KEY,
	labels JSONB NOT NULL DEFAULT '[]',
	structured_label JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure document_labels schema: %w", err)
	}
	return nil
}

// GetLabels returns the plain and structured labels for a document.
// A missing row is ErrDocumentNotFound; callers treat it as unlabeled.
func (r *LabelRepository) GetLabels(ctx context.Context, documentID string) ([]string, *domain.StructuredLabel, error) {
	const query = `
SELECT labels, structured_label
FROM document_labels
WHERE document_id = $1`

	var (
		labelsRaw     []byte
		structuredRaw sql.Null[[]byte]
	)
	err := r.db.QueryRowContext(ctx, query, documentID).Scan(&labelsRaw, &structuredRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, domain.WrapError(domain.ErrDocumentNotFound, "get labels", fmt.Errorf("document %s", documentID))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get labels: %w", err)
	}

	var labels []string
	if len(labelsRaw) > 0 {
		if err := json.Unmarshal(labelsRaw, &labels); err != nil {
			return nil, nil, fmt.Errorf("parse labels for %s: %w", documentID, err)
		}
	}

	var structured *domain.StructuredLabel
	if structuredRaw.Valid && len(structuredRaw.V) > 0 {
		structured = &domain.StructuredLabel{}
		if err := json.Unmarshal(structuredRaw.V, structured); err != nil {
			return nil, nil, fmt.Errorf("parse structured label for %s: %w", documentID, err)
		}
	}

	return labels, structured, nil
}
