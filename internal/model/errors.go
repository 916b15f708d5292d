package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for whole-source failures. Both are retryable; the
// orchestrator backs off and re-fetches up to its attempt ceiling.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSourceQuota       = errors.New("source rate limited")
)

// SchemaMismatchError means a CSV header contained no recognized timestamp
// or pollutant columns. It is fatal to that file before any row is read.
type SchemaMismatchError struct {
	File   string
	Header []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("unrecognized schema in %s: header [%s]", e.File, strings.Join(e.Header, ", "))
}

// ValidationError means a single record failed unit or range checks. It is
// fatal to that record only; adapters collect it as a Rejection.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IsRetryable reports whether an error represents a transient source
// failure worth retrying with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrSourceQuota)
}
