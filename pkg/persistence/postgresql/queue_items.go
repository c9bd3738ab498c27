package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/persistence"
)

const queueItemColumns = `
	id
  , recipient
  , payload
  , priority
  , scheduled_at
  , attempts
  , max_attempts
  , status
  , error
  , metadata
  , created_at
  , updated_at
`

// QueueItemRepository handles queue item database operations.
type QueueItemRepository struct {
	db *sql.DB
}

func (r *QueueItemRepository) GetByID(ctx context.Context, id string) (*models.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items WHERE id = $1`

	item, err := scanQueueItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "queue_item", id, persistence.ErrItemNotFound)
		}

		return nil, fmt.Errorf("failed to scan queue item: %w", err)
	}

	return item, nil
}

func (r *QueueItemRepository) Save(ctx context.Context, item *models.QueueItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO queue_items (` + queueItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			recipient = EXCLUDED.recipient
		  , payload = EXCLUDED.payload
		  , priority = EXCLUDED.priority
		  , scheduled_at = EXCLUDED.scheduled_at
		  , attempts = EXCLUDED.attempts
		  , max_attempts = EXCLUDED.max_attempts
		  , status = EXCLUDED.status
		  , error = EXCLUDED.error
		  , metadata = EXCLUDED.metadata
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		item.ID,
		item.Recipient,
		payload,
		item.Priority,
		item.ScheduledAt,
		item.Attempts,
		item.MaxAttempts,
		item.Status,
		nullString(item.Error),
		metadata,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save queue item: %w", err)
	}

	return nil
}

func (r *QueueItemRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queue item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Delete", "queue_item", id, persistence.ErrItemNotFound)
	}

	return nil
}

func (r *QueueItemRepository) List(ctx context.Context, filter persistence.ItemFilter) ([]*models.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items WHERE 1=1`
	args := make([]any, 0, 4)

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	if filter.Priority != "" {
		args = append(args, filter.Priority)
		query += fmt.Sprintf(" AND priority = $%d", len(args))
	}

	if filter.Recipient != "" {
		args = append(args, filter.Recipient)
		query += fmt.Sprintf(" AND LOWER(recipient) = LOWER($%d)", len(args))
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return r.queryItems(ctx, query, args...)
}

func (r *QueueItemRepository) ListReady(ctx context.Context, now time.Time, limit int) ([]*models.QueueItem, error) {
	query := `
		SELECT ` + queueItemColumns + `
		FROM queue_items
		WHERE status = 'pending'
		  AND scheduled_at <= $1
		  AND attempts < max_attempts
		ORDER BY
			CASE priority WHEN 'high' THEN 3 WHEN 'normal' THEN 2 ELSE 1 END DESC
		  , scheduled_at ASC
	`
	args := []any{now}

	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $2"
	}

	return r.queryItems(ctx, query, args...)
}

func (r *QueueItemRepository) PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM queue_items
		WHERE status IN ('sent', 'cancelled') AND updated_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue items: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return int(affected), nil
}

func (r *QueueItemRepository) CountByStatus(ctx context.Context) (map[models.QueueItemStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[models.QueueItemStatus]int)

	for rows.Next() {
		var (
			status models.QueueItemStatus
			count  int
		)

		err = rows.Scan(&status, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}

		counts[status] = count
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

func (r *QueueItemRepository) queryItems(ctx context.Context, query string, args ...any) ([]*models.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	items := make([]*models.QueueItem, 0)

	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}

		items = append(items, item)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating queue items: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var (
		item     models.QueueItem
		payload  []byte
		metadata []byte
		errMsg   sql.NullString
	)

	err := row.Scan(
		&item.ID,
		&item.Recipient,
		&payload,
		&item.Priority,
		&item.ScheduledAt,
		&item.Attempts,
		&item.MaxAttempts,
		&item.Status,
		&errMsg,
		&metadata,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(payload, &item.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if len(metadata) > 0 {
		err = json.Unmarshal(metadata, &item.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	item.Error = errMsg.String

	return &item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
