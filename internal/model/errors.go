package model

import (
	"errors"
	"strings"
)

var (
	// ErrOutOfCredits is returned when a user has no credit left to spend.
	ErrOutOfCredits = errors.New("out_of_credits")

	// ErrInvalidSignature is returned when a webhook payload fails verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ValidationError describes a malformed request body.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + strings.Join(e.Problems, "; ")
}

// Add appends a problem description.
func (e *ValidationError) Add(problem string) {
	e.Problems = append(e.Problems, problem)
}

// OrNil returns e when it holds at least one problem.
func (e *ValidationError) OrNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
