package service

import (
	"errors"
	"fmt"
	"strings"

	"school-timetable/internal/domain"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrEntryNotFound   = errors.New("entry not found")
	ErrTeacherNotFound = errors.New("teacher not found")
	ErrConflict        = errors.New("conflict")
)

// ConflictError carries the blocking entries so callers can render which
// existing slot is in the way. It matches ErrConflict under errors.Is.
type ConflictError struct {
	Conflicts []domain.Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return "scheduling conflict"
	}
	parts := make([]string, 0, len(e.Conflicts))
	for _, conflict := range e.Conflicts {
		blocking := conflict.Blocking
		parts = append(parts, fmt.Sprintf(
			"%s with %s %s (%s %s-%s)",
			conflict.Kind,
			blocking.ClassName,
			blocking.Section,
			blocking.Day,
			blocking.StartTime,
			blocking.EndTime,
		))
	}
	return "scheduling conflict: " + strings.Join(parts, "; ")
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
