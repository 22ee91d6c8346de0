package core

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports malformed or missing input. It is returned
// before any side effect.
type ValidationError struct {
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Constraint
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Constraint)
}

// NotFoundError reports a referenced record that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// DependencyError wraps a failed or timed out call to a store or an
// external service.
type DependencyError struct {
	Dependency string
	Op         string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Dependency, e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// Dependency names used in DependencyError.
const (
	DepEmbedding  = "embedding"
	DepGeneration = "generation"
	DepStore      = "store"
	DepIndex      = "index"
)

// NewDependencyError wraps err, returning nil when err is nil.
func NewDependencyError(dep, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DependencyError
	if errors.As(err, &de) {
		return err
	}
	return &DependencyError{Dependency: dep, Op: op, Err: err}
}

// ItemFailure is one failed item of a bulk operation.
type ItemFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchError reports the item failures of a bulk operation that still
// ran to completion.
type BatchError struct {
	Op        string
	Succeeded int
	Failures  []ItemFailure
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.ID)
	}
	return fmt.Sprintf("%s: %d succeeded, %d failed (%s)", e.Op, e.Succeeded, len(e.Failures), strings.Join(ids, ", "))
}

// ErrLoopBoundExceeded is surfaced as a warning when the tool loop hits
// its iteration limit.
var ErrLoopBoundExceeded = errors.New("tool iteration limit exceeded")

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsDependency reports whether err is a DependencyError.
func IsDependency(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}
