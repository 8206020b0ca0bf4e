package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"poshook/internal/constants"
)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore expects the delivery_attempts table created by
// migrations.RunPostgres.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Name() string {
	return constants.JournalBackendPostgres
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO delivery_attempts (
			attempt_id, entity_type, entity_id, event_type, idempotency_key,
			outcome, attempts, http_status, last_error, next_retry_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (attempt_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			attempts = EXCLUDED.attempts,
			http_status = EXCLUDED.http_status,
			last_error = EXCLUDED.last_error,
			next_retry_at = EXCLUDED.next_retry_at,
			updated_at = EXCLUDED.updated_at
		WHERE delivery_attempts.outcome = 'pending'
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.AttemptID,
		rec.EntityType,
		rec.EntityID,
		rec.EventType,
		rec.IdempotencyKey,
		rec.Outcome,
		rec.Attempts,
		rec.HTTPStatus,
		rec.LastError,
		rec.NextRetryAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert delivery attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, attemptID string) (*Record, error) {
	query := `
		SELECT attempt_id, entity_type, entity_id, event_type, idempotency_key,
			outcome, attempts, http_status, last_error, next_retry_at,
			created_at, updated_at
		FROM delivery_attempts
		WHERE attempt_id = $1
	`

	var rec Record
	var nextRetryAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, attemptID).Scan(
		&rec.AttemptID,
		&rec.EntityType,
		&rec.EntityID,
		&rec.EventType,
		&rec.IdempotencyKey,
		&rec.Outcome,
		&rec.Attempts,
		&rec.HTTPStatus,
		&rec.LastError,
		&nextRetryAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(attemptID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery attempt: %w", err)
	}

	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		rec.NextRetryAt = &t
	}
	return &rec, nil
}
