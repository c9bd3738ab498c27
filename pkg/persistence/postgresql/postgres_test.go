package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/persistence"
	"github.com/heraldhq/herald/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"campaigns", "workflow_executions", "workflows", "queue_items", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("herald_test"),
			postgres.WithUsername("herald"),
			postgres.WithPassword("herald"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = persist.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return persist, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"queue_items", "workflows", "workflow_executions", "campaigns"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table+" table should exist")
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestQueueItems_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.QueueItems()

	item := &models.QueueItem{
		ID:        uuid.New().String(),
		Recipient: "ana@example.com",
		Payload: models.EmailPayload{
			Subject: "Welcome",
			Body:    "Hi Ana",
		},
		Priority:    models.PriorityHigh,
		ScheduledAt: time.Now().Add(-time.Minute),
		MaxAttempts: 3,
		Status:      models.QueueItemPending,
		Metadata:    map[string]any{"campaign_id": "camp-1"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, repo.Save(ctx, item))

	stored, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Recipient, stored.Recipient)
	assert.Equal(t, "Welcome", stored.Payload.Subject)
	assert.Equal(t, models.PriorityHigh, stored.Priority)
	assert.Equal(t, "camp-1", stored.Metadata["campaign_id"])

	_, err = repo.GetByID(ctx, uuid.New().String())
	require.True(t, persistence.IsItemNotFound(err))
}

func TestQueueItems_ListReadyOrdering(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.QueueItems()
	now := time.Now()

	save := func(priority models.Priority, scheduledAt time.Time) string {
		id := uuid.New().String()
		require.NoError(t, repo.Save(ctx, &models.QueueItem{
			ID:          id,
			Recipient:   "ana@example.com",
			Payload:     models.EmailPayload{Subject: "s"},
			Priority:    priority,
			ScheduledAt: scheduledAt,
			MaxAttempts: 3,
			Status:      models.QueueItemPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}))

		return id
	}

	lowOld := save(models.PriorityLow, now.Add(-time.Hour))
	highNew := save(models.PriorityHigh, now.Add(-time.Second))
	save(models.PriorityHigh, now.Add(time.Hour))

	ready, err := repo.ListReady(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, highNew, ready[0].ID)
	assert.Equal(t, lowOld, ready[1].ID)
}

func TestWorkflows_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Workflows()

	workflow := &models.Workflow{
		ID:       uuid.New().String(),
		Name:     "Signup Welcome",
		IsActive: true,
		Trigger: models.WorkflowTrigger{
			EventType:  "signup",
			Conditions: map[string]any{"plan": "pro"},
		},
		Steps: []*models.WorkflowStep{
			{
				ID:     "step-1",
				Type:   models.StepSendEmail,
				Config: map[string]any{"subject": "Welcome"},
			},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, repo.Save(ctx, workflow))

	stored, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Signup Welcome", stored.Name)
	assert.Equal(t, "signup", stored.Trigger.EventType)
	require.Len(t, stored.Steps, 1)
	assert.Equal(t, models.StepSendEmail, stored.Steps[0].Type)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, repo.Delete(ctx, workflow.ID))

	_, err = repo.GetByID(ctx, workflow.ID)
	require.True(t, persistence.IsWorkflowNotFound(err))
}

func TestExecutions_SaveAndListScheduledWake(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Executions()

	wake := time.Now().Add(time.Hour)
	execution := &models.WorkflowExecution{
		ID:            uuid.New().String(),
		WorkflowID:    uuid.New().String(),
		ContactID:     "contact-1",
		CurrentStepID: "step-wait",
		Status:        models.ExecutionActive,
		Variables:     map[string]any{"plan": "pro"},
		History: []models.HistoryEntry{
			{StepID: "step-1", Status: models.ExecutionCompleted, ExecutedAt: time.Now()},
		},
		WakeAt:    &wake,
		StartedAt: time.Now(),
	}
	require.NoError(t, repo.Save(ctx, execution))

	stored, err := repo.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "step-wait", stored.CurrentStepID)
	require.NotNil(t, stored.WakeAt)
	require.Len(t, stored.History, 1)

	scheduled, err := repo.ListScheduledWake(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, execution.ID, scheduled[0].ID)
}

func TestCampaigns_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Campaigns()

	campaign := &models.Campaign{
		ID:      uuid.New().String(),
		Name:    "Launch",
		Subject: "We are live",
		Status:  models.CampaignDraft,
		Recipients: []*models.Recipient{
			{ContactID: "contact-1", Email: "ana@example.com", Status: models.RecipientPending},
		},
		Settings: models.CampaignSettings{
			BatchSize: 50,
			SendRate:  models.SendRate{MaxPerHour: 1000},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, repo.Save(ctx, campaign))

	stored, err := repo.GetByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignDraft, stored.Status)
	require.Len(t, stored.Recipients, 1)
	assert.Equal(t, 50, stored.Settings.BatchSize)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.GetByID(ctx, uuid.New().String())
	require.True(t, persistence.IsCampaignNotFound(err))
}
