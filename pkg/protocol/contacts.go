package protocol

import (
	"context"

	"github.com/heraldhq/herald/pkg/models"
)

// ContactService is the contact collaborator used by side-effecting
// workflow steps.
type ContactService interface {
	GetContactByID(ctx context.Context, id string) (*models.Contact, error)
	UpdateContact(ctx context.Context, id string, fields map[string]any) (*models.Contact, error)
	AddTags(ctx context.Context, id string, tags []string) error
	RemoveTags(ctx context.Context, id string, tags []string) error
}
