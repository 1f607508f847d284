package engine

import (
	"errors"
	"fmt"

	"github.com/chargee-energy/chargee-developer-playground/pkg/api"
	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
	"github.com/chargee-energy/chargee-developer-playground/pkg/progress"
)

// RunError is a run-fatal failure.
type RunError struct {
	GroupID string
	Stage   progress.Stage
	Err     error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("aggregation of group %s failed at %s: %v", e.GroupID, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsRunError checks if an error is a RunError.
func IsRunError(err error) bool {
	var runErr *RunError
	return errors.As(err, &runErr)
}

// UserMessage renders err for display. Upstream detail is shown when the
// remote service provided one; otherwise a generic message naming category
// is returned. An empty category yields a message about the analytics run.
func UserMessage(err error, category model.Category) string {
	if err == nil {
		return ""
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	if category == "" {
		return "Failed to load analytics. Please try again."
	}
	return fmt.Sprintf("Failed to load %s. Please try again.", category.Label())
}
