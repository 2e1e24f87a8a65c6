package domain

import "github.com/google/uuid"

// EntryPatch carries the fields present in a partial update. Nil means the
// field was absent from the request and keeps its current value.
type EntryPatch struct {
	ClassName   *string
	Section     *string
	SubjectName *string
	TeacherID   *uuid.UUID
	Day         *Weekday
	StartTime   *TimeOfDay
	EndTime     *TimeOfDay
	RoomNumber  *string
}

// Apply merges the patch onto an existing entry and reports whether any
// scheduling-relevant field (day, times, class, section, teacher) changed.
// A patch touching only room number or subject does not require the conflict
// detector to re-run.
func (p EntryPatch) Apply(entry Entry) (Entry, bool) {
	merged := entry
	schedulingChanged := false

	if p.ClassName != nil && *p.ClassName != merged.ClassName {
		merged.ClassName = *p.ClassName
		schedulingChanged = true
	}
	if p.Section != nil && *p.Section != merged.Section {
		merged.Section = *p.Section
		schedulingChanged = true
	}
	if p.TeacherID != nil && *p.TeacherID != merged.TeacherID {
		merged.TeacherID = *p.TeacherID
		schedulingChanged = true
	}
	if p.Day != nil && *p.Day != merged.Day {
		merged.Day = *p.Day
		schedulingChanged = true
	}
	if p.StartTime != nil && *p.StartTime != merged.StartTime {
		merged.StartTime = *p.StartTime
		schedulingChanged = true
	}
	if p.EndTime != nil && *p.EndTime != merged.EndTime {
		merged.EndTime = *p.EndTime
		schedulingChanged = true
	}
	if p.SubjectName != nil {
		merged.SubjectName = *p.SubjectName
	}
	if p.RoomNumber != nil {
		merged.RoomNumber = *p.RoomNumber
	}

	return merged, schedulingChanged
}
