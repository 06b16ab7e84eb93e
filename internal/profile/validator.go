package profile

import (
	"fmt"
	"strings"
)

// ValidationError represents a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks that the profile has at least one stage and that no
// stage carries a negative duration or target.
//
// Returns nil if valid, or a *ValidationErrors listing every problem.
func (p Profile) Validate() error {
	errs := &ValidationErrors{}

	if len(p.Stages) == 0 {
		errs.Add("stages", "at least one stage is required")
	}

	for i, stage := range p.Stages {
		prefix := fmt.Sprintf("stages[%d]", i)
		if stage.Duration < 0 {
			errs.Add(prefix+".duration", fmt.Sprintf("duration must be >= 0, got %s", stage.Duration))
		}
		if stage.Target < 0 {
			errs.Add(prefix+".target", fmt.Sprintf("target must be >= 0, got %d", stage.Target))
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
