package models

// TriggerEvent is an external business occurrence that may start workflow
// executions: a signup, a purchase, an abandoned cart.
type TriggerEvent struct {
	Type      string         `json:"type"       validate:"required"`
	ContactID string         `json:"contact_id" validate:"required"`
	Data      map[string]any `json:"data,omitempty"`
}

// Contact is the pipeline's view of one CRM contact.
type Contact struct {
	ID         string         `json:"id"`
	Email      string         `json:"email" validate:"required,email"`
	FirstName  string         `json:"first_name,omitempty"`
	LastName   string         `json:"last_name,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
}

// TemplateContext flattens the contact into a field map usable for
// placeholder rendering.
func (c *Contact) TemplateContext() map[string]any {
	ctx := map[string]any{
		"email":     c.Email,
		"firstName": c.FirstName,
		"lastName":  c.LastName,
	}

	for k, v := range c.Attributes {
		ctx[k] = v
	}

	return ctx
}
