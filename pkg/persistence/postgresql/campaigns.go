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

const campaignColumns = `
	id
  , name
  , subject
  , body
  , status
  , recipients
  , settings
  , stats
  , created_at
  , updated_at
`

// CampaignRepository handles campaign database operations.
type CampaignRepository struct {
	db *sql.DB
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "campaign", id, persistence.ErrCampaignNotFound)
		}

		return nil, fmt.Errorf("failed to scan campaign: %w", err)
	}

	return campaign, nil
}

func (r *CampaignRepository) Save(ctx context.Context, campaign *models.Campaign) error {
	recipients, err := json.Marshal(campaign.Recipients)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients: %w", err)
	}

	settings, err := json.Marshal(campaign.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	stats, err := json.Marshal(campaign.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	query := `
		INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , subject = EXCLUDED.subject
		  , body = EXCLUDED.body
		  , status = EXCLUDED.status
		  , recipients = EXCLUDED.recipients
		  , settings = EXCLUDED.settings
		  , stats = EXCLUDED.stats
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		campaign.ID,
		campaign.Name,
		campaign.Subject,
		campaign.Body,
		campaign.Status,
		recipients,
		settings,
		stats,
		campaign.CreatedAt,
		campaign.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}

	return nil
}

func (r *CampaignRepository) List(ctx context.Context) ([]*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	campaigns := make([]*models.Campaign, 0)

	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}

		campaigns = append(campaigns, campaign)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}

	return campaigns, nil
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	var (
		campaign   models.Campaign
		body       sql.NullString
		recipients []byte
		settings   []byte
		stats      []byte
	)

	err := row.Scan(
		&campaign.ID,
		&campaign.Name,
		&campaign.Subject,
		&body,
		&campaign.Status,
		&recipients,
		&settings,
		&stats,
		&campaign.CreatedAt,
		&campaign.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	campaign.Body = body.String

	err = json.Unmarshal(recipients, &campaign.Recipients)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipients: %w", err)
	}

	if len(settings) > 0 {
		err = json.Unmarshal(settings, &campaign.Settings)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}

	if len(stats) > 0 {
		err = json.Unmarshal(stats, &campaign.Stats)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
		}
	}

	return &campaign, nil
}
