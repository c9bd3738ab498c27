package contacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/pkg/models"
)

func newService() *MemoryService {
	s := NewMemoryService()
	s.Put(&models.Contact{
		ID:        "contact-1",
		Email:     "ana@example.com",
		FirstName: "Ana",
		Tags:      []string{"beta"},
	})

	return s
}

func TestGetContactByID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newService()

	contact, err := s.GetContactByID(ctx, "contact-1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", contact.Email)

	_, err = s.GetContactByID(ctx, "missing")
	require.ErrorIs(t, err, ErrContactNotFound)
}

func TestGetContactReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newService()

	contact, err := s.GetContactByID(ctx, "contact-1")
	require.NoError(t, err)

	contact.Email = "mutated@example.com"
	contact.Tags[0] = "mutated"

	stored, err := s.GetContactByID(ctx, "contact-1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", stored.Email)
	assert.Equal(t, []string{"beta"}, stored.Tags)
}

func TestUpdateContact(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newService()

	updated, err := s.UpdateContact(ctx, "contact-1", map[string]any{
		"email":     "new@example.com",
		"firstName": "Anabel",
		"plan":      "pro",
	})
	require.NoError(t, err)

	assert.Equal(t, "new@example.com", updated.Email)
	assert.Equal(t, "Anabel", updated.FirstName)
	assert.Equal(t, "pro", updated.Attributes["plan"])

	_, err = s.UpdateContact(ctx, "missing", map[string]any{"plan": "pro"})
	require.ErrorIs(t, err, ErrContactNotFound)
}

func TestAddTagsDeduplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newService()

	require.NoError(t, s.AddTags(ctx, "contact-1", []string{"beta", "newsletter", "newsletter"}))

	contact, err := s.GetContactByID(ctx, "contact-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"beta", "newsletter"}, contact.Tags)
}

func TestRemoveTags(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newService()

	require.NoError(t, s.AddTags(ctx, "contact-1", []string{"newsletter"}))
	require.NoError(t, s.RemoveTags(ctx, "contact-1", []string{"beta", "unknown"}))

	contact, err := s.GetContactByID(ctx, "contact-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"newsletter"}, contact.Tags)

	require.ErrorIs(t, s.RemoveTags(ctx, "missing", []string{"beta"}), ErrContactNotFound)
}
