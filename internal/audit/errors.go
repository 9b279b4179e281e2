package audit

import (
	"errors"
	"fmt"
)

// ErrProductNotFound is returned when neither the id nor the slug resolves.
var ErrProductNotFound = errors.New("product not found")

// ErrRunNotFound is returned for status queries against an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// ErrUnknownStage is returned when a requested stage name resolves to nothing,
// canonical or alias.
var ErrUnknownStage = errors.New("unknown stage")

// PrereqError reports a stage invoked before its prerequisite has run.
// Mapped to 409 at the HTTP edge.
type PrereqError struct {
	Stage   string
	Missing string
}

func (e *PrereqError) Error() string {
	return fmt.Sprintf("stage %s requires %s to complete first", e.Stage, e.Missing)
}

// DependencyError reports a stage whose prerequisite exists but failed or was
// blocked. Mapped to 424.
type DependencyError struct {
	Stage  string
	Failed string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %s cannot run: dependency %s failed", e.Stage, e.Failed)
}

// StageValidationError reports output that failed the stage's validator.
// Mapped to 422.
type StageValidationError struct {
	Stage  string
	Reason string
}

func (e *StageValidationError) Error() string {
	return fmt.Sprintf("stage %s produced invalid output: %s", e.Stage, e.Reason)
}
