package service

import (
	"context"

	"github.com/google/uuid"

	"school-timetable/internal/domain"
	"school-timetable/internal/repository"
)

// detectConflicts runs the teacher scan and the class scan for a candidate
// slot and returns every blocking entry found. Both scans always run, on the
// mutating path too, so that validate-only callers and writers observe the
// same conflict set. The cost is two indexed (school_id, day) lookups.
func detectConflicts(
	ctx context.Context,
	entries repository.EntryRepository,
	candidate domain.Candidate,
	excludeID *uuid.UUID,
) ([]domain.Conflict, error) {
	interval := domain.Interval{Start: candidate.StartTime, End: candidate.EndTime}

	var conflicts []domain.Conflict

	teacherDay, err := entries.ListForTeacherDay(ctx, candidate.SchoolID, candidate.TeacherID, candidate.Day, excludeID)
	if err != nil {
		return nil, err
	}
	for _, existing := range teacherDay {
		if interval.Overlaps(existing.Interval()) {
			conflicts = append(conflicts, domain.Conflict{Kind: domain.TeacherConflict, Blocking: existing})
			break
		}
	}

	classDay, err := entries.ListForClassDay(ctx, candidate.SchoolID, candidate.ClassName, candidate.Section, candidate.Day, excludeID)
	if err != nil {
		return nil, err
	}
	for _, existing := range classDay {
		if interval.Overlaps(existing.Interval()) {
			conflicts = append(conflicts, domain.Conflict{Kind: domain.ClassConflict, Blocking: existing})
			break
		}
	}

	return conflicts, nil
}
