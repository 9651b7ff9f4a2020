package policy

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError represents a registry validation error
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", ve.Field, ve.Message, ve.Value)
}

// ValidationResult represents the result of registry validation
type ValidationResult struct {
	Valid    bool
	Errors   []*ValidationError
	Warnings []string
}

// IsValid returns true if the validation result is valid
func (vr *ValidationResult) IsValid() bool {
	return vr.Valid && len(vr.Errors) == 0
}

// AddError adds a validation error
func (vr *ValidationResult) AddError(field, message string, value interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// AddWarning adds a validation warning
func (vr *ValidationResult) AddWarning(message string) {
	vr.Warnings = append(vr.Warnings, message)
}

// Err joins the validation errors, or returns nil when there are none.
func (vr *ValidationResult) Err() error {
	if len(vr.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(vr.Errors))
	for i, e := range vr.Errors {
		errs[i] = e
	}
	return stderrors.Join(errs...)
}

// NewValidationResult creates a new validation result
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:    true,
		Errors:   make([]*ValidationError, 0),
		Warnings: make([]string, 0),
	}
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

func validateEntry(result *ValidationResult, e Entry) {
	field := e.Operation()

	if !knownMethods[e.Method] {
		result.AddError(field+".method", "unsupported HTTP method", e.Method)
	}
	if !strings.HasPrefix(e.Pattern, "/") {
		result.AddError(field+".route", "route pattern must start with '/'", e.Pattern)
	}
	if strings.Count(e.Pattern, "{") != strings.Count(e.Pattern, "}") {
		result.AddError(field+".route", "unbalanced route parameter braces", e.Pattern)
	}
	if !e.Requirement.Kind.valid() {
		result.AddError(field+".kind", "kind must be 'permission' or 'role'", e.Requirement.Kind)
	}

	name := e.Requirement.Name
	switch {
	case name == "":
		result.AddError(field+".name", "requirement name cannot be empty", name)
	case strings.TrimSpace(name) != name:
		result.AddError(field+".name", "requirement name has surrounding whitespace", name)
	case len(name) > 255:
		result.AddError(field+".name", "requirement name too long (max 255 characters)", name)
	}

	if strings.HasSuffix(e.Pattern, "/") && e.Pattern != "/" {
		result.AddWarning(fmt.Sprintf("%s: trailing slash routes rarely match chi patterns", field))
	}
}
