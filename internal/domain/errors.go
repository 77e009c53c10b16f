package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError carries a message for every field that failed validation.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AuthorizationError is returned when a role may not use a capability.
type AuthorizationError struct {
	Role       string
	Capability string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("role %q is not allowed to access %q", e.Role, e.Capability)
}

// NotFoundError is returned when a report id does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("report not found: %s", e.ID)
}

// ConflictError is returned when an update was based on a stale version.
type ConflictError struct {
	ID       string
	Expected int
	Actual   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("report %s was modified concurrently: expected version %d, found %d", e.ID, e.Expected, e.Actual)
}

// PersistenceError wraps a storage failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
