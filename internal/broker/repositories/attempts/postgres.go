package attempts

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/docbroker/internal/broker/models"
	"github.com/dmitrijs2005/docbroker/internal/dbx"
)

// PostgresRepository implements the attempt audit trail over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Record inserts one upload-attempt row. Exactly one row must be affected.
func (r *PostgresRepository) Record(ctx context.Context, a *models.UploadAttempt) error {
	query := `
		INSERT INTO upload_attempts (id, doc_key, attempt, forced, status, status_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	res, err := r.db.ExecContext(ctx, query,
		a.ID, a.DocKey, a.Attempt, a.Forced, a.Status, a.StatusCode, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

// ListByDocKey returns all attempts for docKey in attempt order.
func (r *PostgresRepository) ListByDocKey(ctx context.Context, docKey string) ([]*models.UploadAttempt, error) {
	query := `
		SELECT id, doc_key, attempt, forced, status, status_code, created_at
		FROM upload_attempts
		WHERE doc_key=$1
		ORDER BY attempt
	`
	rows, err := r.db.QueryContext(ctx, query, docKey)
	if err != nil {
		return nil, fmt.Errorf("failed to select attempts: %w", err)
	}
	defer rows.Close()

	var result []*models.UploadAttempt
	for rows.Next() {
		var item models.UploadAttempt
		if err := rows.Scan(&item.ID, &item.DocKey, &item.Attempt, &item.Forced,
			&item.Status, &item.StatusCode, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
