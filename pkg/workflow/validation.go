package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/heraldhq/herald/pkg/models"
)

var ErrInvalidDefinition = errors.New("invalid workflow definition")

var validate = validator.New()

// stepConfigSchemas holds the JSON schema each step type's config must
// satisfy. Types absent from the map accept any config.
var stepConfigSchemas = map[models.StepType]map[string]any{
	models.StepSendEmail: {
		"type":     "object",
		"required": []any{"subject"},
		"properties": map[string]any{
			"subject":    map[string]any{"type": "string", "minLength": 1},
			"body":       map[string]any{"type": "string"},
			"priority":   map[string]any{"type": "string", "enum": []any{"high", "normal", "low"}},
			"customData": map[string]any{"type": "object"},
		},
	},
	models.StepWait: {
		"type":     "object",
		"required": []any{"waitDuration"},
		"properties": map[string]any{
			"waitDuration": map[string]any{"type": "number", "exclusiveMinimum": 0},
		},
	},
	models.StepCondition: {
		"type":     "object",
		"required": []any{"condition"},
		"properties": map[string]any{
			"condition": map[string]any{
				"type":     "object",
				"required": []any{"field", "operator"},
				"properties": map[string]any{
					"field": map[string]any{"type": "string", "minLength": 1},
					"operator": map[string]any{
						"type": "string",
						"enum": []any{
							"equals", "not_equals", "greater_than", "less_than",
							"contains", "not_contains", "is_null", "is_not_null",
						},
					},
				},
			},
		},
	},
	models.StepUpdateContact: {
		"type":     "object",
		"required": []any{"fields"},
		"properties": map[string]any{
			"fields": map[string]any{"type": "object", "minProperties": 1},
		},
	},
	models.StepAddTag: {
		"type":     "object",
		"required": []any{"tags"},
		"properties": map[string]any{
			"tags": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "string"},
			},
		},
	},
	models.StepRemoveTag: {
		"type":     "object",
		"required": []any{"tags"},
		"properties": map[string]any{
			"tags": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "string"},
			},
		},
	},
}

// ValidateDefinition checks the struct-level constraints, the step graph
// references, and each step's config against its type schema.
func ValidateDefinition(definition *models.Workflow) error {
	err := validate.Struct(definition)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	stepIDs := make(map[string]struct{}, len(definition.Steps))

	for _, step := range definition.Steps {
		if !step.Type.Valid() {
			return fmt.Errorf("%w: step %q has unknown type %q", ErrInvalidDefinition, step.ID, step.Type)
		}

		if _, dup := stepIDs[step.ID]; dup {
			return fmt.Errorf("%w: duplicate step id %q", ErrInvalidDefinition, step.ID)
		}

		stepIDs[step.ID] = struct{}{}
	}

	for _, step := range definition.Steps {
		for _, next := range step.NextSteps {
			if _, exists := stepIDs[next]; !exists {
				return fmt.Errorf("%w: step %q references unknown step %q", ErrInvalidDefinition, step.ID, next)
			}
		}

		err := validateStepConfig(step)
		if err != nil {
			return err
		}
	}

	return nil
}

func validateStepConfig(step *models.WorkflowStep) error {
	schema, ok := stepConfigSchemas[step.Type]
	if !ok {
		return nil
	}

	config := step.Config
	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	configLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, configLoader)
	if err != nil {
		return fmt.Errorf("failed to validate step %q config: %w", step.ID, err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("%w: step %q config: %s", ErrInvalidDefinition, step.ID, strings.Join(descriptions, "; "))
	}

	return nil
}
