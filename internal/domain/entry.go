package domain

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one scheduled (day, time range, class/section, teacher, subject)
// assignment, owned by exactly one school.
type Entry struct {
	ID          uuid.UUID
	SchoolID    uuid.UUID
	ClassName   string
	Section     string
	SubjectName string
	TeacherID   uuid.UUID
	Day         Weekday
	StartTime   TimeOfDay
	EndTime     TimeOfDay
	RoomNumber  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (e Entry) Interval() Interval {
	return Interval{Start: e.StartTime, End: e.EndTime}
}

// EntryDetail is an Entry joined with display fields owned by collaborators.
type EntryDetail struct {
	Entry
	TeacherName string
}

// TimeSlot is a distinct (start, end) pair actually in use within a school.
type TimeSlot struct {
	StartTime TimeOfDay
	EndTime   TimeOfDay
}

// DayCount, ClassCount and SubjectCount are reporting rows computed from the
// store on read.
type DayCount struct {
	Day   Weekday
	Count int
}

type ClassCount struct {
	ClassName string
	Count     int
}

type SubjectCount struct {
	SubjectName string
	Count       int
}
