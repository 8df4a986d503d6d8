// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates malformed input.
var ErrValidation = errors.New("validation failed")

// ErrNoProvider indicates no model provider is available for the request.
var ErrNoProvider = errors.New("no model provider available")

// ErrBudgetExhausted indicates the agent or tenant budget refuses new work.
var ErrBudgetExhausted = errors.New("budget exhausted")
