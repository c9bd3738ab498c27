package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/persistence"
)

const executionColumns = `
	id
  , workflow_id
  , contact_id
  , current_step_id
  , status
  , variables
  , history
  , wake_at
  , started_at
  , completed_at
`

// ExecutionRepository handles workflow execution database operations.
type ExecutionRepository struct {
	db *sql.DB
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	variables, err := json.Marshal(execution.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	history, err := json.Marshal(execution.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	query := `
		INSERT INTO workflow_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			current_step_id = EXCLUDED.current_step_id
		  , status = EXCLUDED.status
		  , variables = EXCLUDED.variables
		  , history = EXCLUDED.history
		  , wake_at = EXCLUDED.wake_at
		  , completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.ContactID,
		nullString(execution.CurrentStepID),
		execution.Status,
		variables,
		history,
		execution.WakeAt,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) ListActive(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE status = 'active'`
	args := make([]any, 0, 1)

	if workflowID != "" {
		args = append(args, workflowID)
		query += " AND workflow_id = $1"
	}

	query += " ORDER BY started_at DESC"

	return r.queryExecutions(ctx, query, args...)
}

func (r *ExecutionRepository) ListScheduledWake(ctx context.Context) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE status = 'active' AND wake_at IS NOT NULL
		ORDER BY wake_at ASC
	`

	return r.queryExecutions(ctx, query)
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.WorkflowExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution     models.WorkflowExecution
		currentStepID sql.NullString
		variables     []byte
		history       []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.ContactID,
		&currentStepID,
		&execution.Status,
		&variables,
		&history,
		&execution.WakeAt,
		&execution.StartedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.CurrentStepID = currentStepID.String

	if len(variables) > 0 {
		err = json.Unmarshal(variables, &execution.Variables)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	err = json.Unmarshal(history, &execution.History)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	return &execution, nil
}
