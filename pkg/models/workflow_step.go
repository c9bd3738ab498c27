package models

import "time"

// StepType identifies the behavior of a workflow step. The set is closed:
// the engine dispatches on it exhaustively.
type StepType string

const (
	StepSendEmail     StepType = "send_email"
	StepWait          StepType = "wait"
	StepCondition     StepType = "condition"
	StepUpdateContact StepType = "update_contact"
	StepAddTag        StepType = "add_tag"
	StepRemoveTag     StepType = "remove_tag"
)

// Valid reports whether the step type is one of the known values.
func (t StepType) Valid() bool {
	switch t {
	case StepSendEmail, StepWait, StepCondition, StepUpdateContact, StepAddTag, StepRemoveTag:
		return true
	default:
		return false
	}
}

// WorkflowStep is one node of the step graph. NextSteps lists successor step
// ids; for condition steps index 0 is the true branch and index 1, when
// present, the false branch.
type WorkflowStep struct {
	ID        string         `json:"id"         validate:"required"`
	Type      StepType       `json:"type"       validate:"required"`
	Config    map[string]any `json:"config"`
	NextSteps []string       `json:"next_steps"`
}

// WaitDuration reads the wait step delay from the config, in minutes.
func (s *WorkflowStep) WaitDuration() time.Duration {
	switch v := s.Config["waitDuration"].(type) {
	case float64:
		return time.Duration(v * float64(time.Minute))
	case int:
		return time.Duration(v) * time.Minute
	default:
		return 0
	}
}

// Condition reads the condition step comparator from the config.
func (s *WorkflowStep) Condition() (Condition, bool) {
	raw, ok := s.Config["condition"].(map[string]any)
	if !ok {
		return Condition{}, false
	}

	field, _ := raw["field"].(string)
	operator, _ := raw["operator"].(string)

	return Condition{
		Field:    field,
		Operator: ConditionOperator(operator),
		Value:    raw["value"],
	}, true
}

// CustomData reads the send_email step template data overrides.
func (s *WorkflowStep) CustomData() map[string]any {
	data, _ := s.Config["customData"].(map[string]any)

	return data
}

// Tags reads the tag list for add_tag/remove_tag steps.
func (s *WorkflowStep) Tags() []string {
	raw, ok := s.Config["tags"].([]any)
	if !ok {
		return nil
	}

	tags := make([]string, 0, len(raw))

	for _, t := range raw {
		if str, ok := t.(string); ok {
			tags = append(tags, str)
		}
	}

	return tags
}

// Fields reads the field updates for update_contact steps.
func (s *WorkflowStep) Fields() map[string]any {
	fields, _ := s.Config["fields"].(map[string]any)

	return fields
}
