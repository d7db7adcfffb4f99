package models

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var paramValidator = validator.New()

// ParameterDefinition describes one field of a model's invocation contract.
type ParameterDefinition struct {
	Name        string      `json:"name" validate:"required"`
	Type        string      `json:"type" validate:"required"`
	Required    *bool       `json:"required" validate:"required"`
	Description string      `json:"description" validate:"required"`
	Example     interface{} `json:"example" validate:"required"`
}

// ModelParameters is the invocation contract stored in Model.Parameters.
type ModelParameters struct {
	RequestHeader      []ParameterDefinition `json:"request_header" validate:"required,dive"`
	RequestBody        []ParameterDefinition `json:"request_body" validate:"required,dive"`
	ResponseParameters []ParameterDefinition `json:"response_parameters" validate:"required,dive"`
}

// DecodeModelParameters converts the loose JSON column into ModelParameters
// and validates it.
func DecodeModelParameters(parameters JSON) (*ModelParameters, error) {
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}

	var modelParams ModelParameters
	if err := json.Unmarshal(raw, &modelParams); err != nil {
		return nil, fmt.Errorf("invalid parameters structure: %w", err)
	}

	if err := paramValidator.Struct(modelParams); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &modelParams, nil
}

// ValidateModelParameters reports whether parameters match the contract schema.
// An empty object is accepted for models registered before their contract is known.
func ValidateModelParameters(parameters JSON) error {
	if len(parameters) == 0 {
		return nil
	}
	_, err := DecodeModelParameters(parameters)
	return err
}
