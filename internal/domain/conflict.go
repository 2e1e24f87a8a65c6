package domain

import "github.com/google/uuid"

// ConflictKind discriminates which resource the blocking entry double-books.
type ConflictKind string

const (
	TeacherConflict ConflictKind = "TEACHER_CONFLICT"
	ClassConflict   ConflictKind = "CLASS_CONFLICT"
)

// Conflict reports one existing entry that blocks a candidate, with enough
// detail for a caller to pick a different slot.
type Conflict struct {
	Kind        ConflictKind
	Blocking    Entry
	TeacherName string
}

// Candidate is the scheduling-relevant projection of an entry checked by the
// conflict detector.
type Candidate struct {
	SchoolID  uuid.UUID
	ClassName string
	Section   string
	TeacherID uuid.UUID
	Day       Weekday
	StartTime TimeOfDay
	EndTime   TimeOfDay
}
