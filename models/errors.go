package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrReportNotFound    = errors.New("report not found")
	ErrSchoolNotFound    = errors.New("school not found")
	ErrPhotoNotFound     = errors.New("photo not found")
	ErrSummaryNotFound   = errors.New("ai summary not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSchoolHasReports  = errors.New("school has reports")
	ErrAINotConfigured   = errors.New("ai features are not configured")
	ErrSummaryInProgress = errors.New("summary generation already in progress")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidationErrors flattens validator/v10 failures into one ValidationError
// per field. Other errors are returned as a single entry.
func ValidationErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return []ValidationError{*ve}
		}
		return []ValidationError{{Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "oneof":
			msg = "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
		case "min":
			msg = "must be at least " + fe.Param()
		case "max":
			msg = "must be at most " + fe.Param()
		}
		out = append(out, ValidationError{Field: toSnake(fe.Field()), Message: msg})
	}
	return out
}

// ValidationFailed wraps validator output so callers can errors.As it to
// *ValidationError while keeping the first failing field.
func ValidationFailed(err error) error {
	list := ValidationErrors(err)
	if len(list) == 0 {
		return err
	}
	first := list[0]
	return &first
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
