package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/actualfyi/audit-service/internal/audit"
	"github.com/actualfyi/audit-service/internal/db"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrUnauthorized indicates a missing or wrong worker secret on an admin route.
type ErrUnauthorized struct{}

func (e *ErrUnauthorized) Error() string {
	return "missing or invalid worker secret"
}

// HTTPStatus returns the appropriate HTTP status code for an error:
// 400 malformed input, 404 not found, 409 prerequisite not satisfied,
// 422 stage validation failed, 424 failed dependency, 500 otherwise.
func HTTPStatus(err error) int {
	var prereq *audit.PrereqError
	var dep *audit.DependencyError
	var stageVal *audit.StageValidationError
	var reqVal *ErrValidation
	var unauth *ErrUnauthorized

	switch {
	case errors.Is(err, audit.ErrProductNotFound), errors.Is(err, audit.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, audit.ErrUnknownStage):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrActiveRunExists):
		return http.StatusConflict
	case errors.As(err, &prereq):
		return http.StatusConflict
	case errors.As(err, &dep):
		return http.StatusFailedDependency
	case errors.As(err, &stageVal):
		return http.StatusUnprocessableEntity
	case errors.As(err, &reqVal):
		return http.StatusBadRequest
	case errors.As(err, &unauth):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
