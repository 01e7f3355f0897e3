package account

import (
	"errors"
	"strings"

	apperrors "github.com/louisbranch/authserver/internal/platform/errors"
)

// FieldError is a user-correctable validation failure tied to a form field.
// An empty Field means the message applies to the whole submission.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates field errors from a single operation.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		if field.Field == "" {
			parts = append(parts, field.Message)
			continue
		}
		parts = append(parts, field.Field+": "+field.Message)
	}
	return strings.Join(parts, "; ")
}

// FieldErrors extracts the field errors carried by err, mapping known domain
// errors onto their form fields. Unknown errors map to a blanket message so
// no raw storage or transport error reaches the caller.
func FieldErrors(err error) []FieldError {
	if err == nil {
		return nil
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation.Fields
	}

	switch apperrors.GetCode(err) {
	case apperrors.CodeAccountEmptyUsername, apperrors.CodeAccountInvalidUsername:
		return []FieldError{{Field: "username", Message: err.Error()}}
	case apperrors.CodeAccountUsernameTaken:
		return []FieldError{{Field: "username", Message: err.Error()}}
	case apperrors.CodeAccountEmptyEmail, apperrors.CodeAccountInvalidEmail:
		return []FieldError{{Field: "email", Message: err.Error()}}
	case apperrors.CodeAccountEmptyPassword:
		return []FieldError{{Field: "password", Message: err.Error()}}
	}
	return []FieldError{{Message: "something went wrong, please try again"}}
}
