// Package contacts provides an in-memory ContactService, used standalone in
// development and as the backing store behind tests.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/heraldhq/herald/pkg/models"
)

var ErrContactNotFound = errors.New("contact not found")

// MemoryService keeps contacts in a map guarded by a RW mutex. Reads return
// copies so callers can never mutate the store through a returned contact.
type MemoryService struct {
	mu       sync.RWMutex
	contacts map[string]*models.Contact
}

func NewMemoryService() *MemoryService {
	return &MemoryService{
		contacts: make(map[string]*models.Contact),
	}
}

// Put inserts or replaces a contact.
func (s *MemoryService) Put(contact *models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contacts[contact.ID] = copyContact(contact)
}

func (s *MemoryService) GetContactByID(_ context.Context, id string) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contact, exists := s.contacts[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrContactNotFound, id)
	}

	return copyContact(contact), nil
}

func (s *MemoryService) UpdateContact(_ context.Context, id string, fields map[string]any) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, exists := s.contacts[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrContactNotFound, id)
	}

	if contact.Attributes == nil {
		contact.Attributes = make(map[string]any)
	}

	for k, v := range fields {
		switch k {
		case "email":
			if email, ok := v.(string); ok {
				contact.Email = email
			}
		case "firstName":
			if name, ok := v.(string); ok {
				contact.FirstName = name
			}
		case "lastName":
			if name, ok := v.(string); ok {
				contact.LastName = name
			}
		default:
			contact.Attributes[k] = v
		}
	}

	return copyContact(contact), nil
}

func (s *MemoryService) AddTags(_ context.Context, id string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, exists := s.contacts[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrContactNotFound, id)
	}

	for _, tag := range tags {
		if !slices.Contains(contact.Tags, tag) {
			contact.Tags = append(contact.Tags, tag)
		}
	}

	return nil
}

func (s *MemoryService) RemoveTags(_ context.Context, id string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, exists := s.contacts[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrContactNotFound, id)
	}

	contact.Tags = slices.DeleteFunc(contact.Tags, func(tag string) bool {
		return slices.Contains(tags, tag)
	})

	return nil
}

func copyContact(contact *models.Contact) *models.Contact {
	copied := *contact

	if contact.Attributes != nil {
		copied.Attributes = make(map[string]any, len(contact.Attributes))
		for k, v := range contact.Attributes {
			copied.Attributes[k] = v
		}
	}

	copied.Tags = slices.Clone(contact.Tags)

	return &copied
}
