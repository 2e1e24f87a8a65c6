package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"school-timetable/internal/domain"
	"school-timetable/internal/repository"
)

// Scope is the resolved tenant of an authenticated request. Every read and
// write is filtered by SchoolID; Admin marks the elevated capability that may
// widen a read to another school or to all schools.
type Scope struct {
	UserID   uuid.UUID
	SchoolID uuid.UUID
	Admin    bool
}

// CreateEntryInput is a fully parsed candidate entry. Section is already
// normalized: an absent section arrives here as the empty string and is
// compared literally.
type CreateEntryInput struct {
	ClassName   string
	Section     string
	SubjectName string
	TeacherID   uuid.UUID
	Day         domain.Weekday
	StartTime   domain.TimeOfDay
	EndTime     domain.TimeOfDay
	RoomNumber  string
}

// ListOptions narrows List. OverrideSchoolID and AllSchools require Admin and
// are recorded in the audit outbox.
type ListOptions struct {
	ClassName        *string
	Section          *string
	TeacherID        *uuid.UUID
	Day              *domain.Weekday
	OverrideSchoolID *uuid.UUID
	AllSchools       bool
}

// ValidationResult is the non-mutating answer to "can I publish this
// candidate?". Conflicts holds the full set found by both scans.
type ValidationResult struct {
	HasConflicts bool
	Conflicts    []domain.Conflict
}

type ScheduleStats struct {
	ByDay     []domain.DayCount
	ByClass   []domain.ClassCount
	BySubject []domain.SubjectCount
}

type TimetableService struct {
	txManager repository.TxManager
	directory TeacherDirectory
	clock     func() time.Time
}

func NewTimetableService(txManager repository.TxManager, directory TeacherDirectory) *TimetableService {
	return &TimetableService{
		txManager: txManager,
		directory: directory,
		clock:     time.Now,
	}
}

// Create verifies the candidate against both conflict dimensions and persists
// it. Check and insert run in one serializable transaction so concurrent
// writers cannot both pass the scan.
func (s *TimetableService) Create(ctx context.Context, scope Scope, input CreateEntryInput) (domain.EntryDetail, error) {
	if err := validateInput(input); err != nil {
		return domain.EntryDetail{}, err
	}

	teacherName, err := s.verifyTeacher(ctx, scope, input.TeacherID)
	if err != nil {
		return domain.EntryDetail{}, err
	}

	now := s.clock()
	entry := domain.Entry{
		ID:          uuid.New(),
		SchoolID:    scope.SchoolID,
		ClassName:   input.ClassName,
		Section:     input.Section,
		SubjectName: input.SubjectName,
		TeacherID:   input.TeacherID,
		Day:         input.Day,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		RoomNumber:  input.RoomNumber,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.txManager.WithSerializableTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		conflicts, err := detectConflicts(ctx, repos.Entries, candidateOf(entry), nil)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{Conflicts: conflicts}
		}

		if err := repos.Entries.Insert(ctx, entry); err != nil {
			return err
		}

		return repos.Outbox.Insert(ctx, domain.AuditEvent{
			EventType: domain.EventEntryCreated,
			Payload:   entryEventPayload(entry, scope),
		})
	})
	if err != nil {
		if repository.IsExclusionViolation(err) {
			return domain.EntryDetail{}, s.conflictFromExclusion(ctx, scope, candidateOf(entry), nil)
		}
		var conflictErr *ConflictError
		if errors.As(err, &conflictErr) {
			s.enrichConflicts(ctx, scope.SchoolID, conflictErr.Conflicts)
		}
		return domain.EntryDetail{}, err
	}

	return domain.EntryDetail{Entry: entry, TeacherName: teacherName}, nil
}

// Update merges the patch onto the stored entry and re-runs the conflict
// detector only when a scheduling-relevant field changed, excluding the entry
// itself from comparison.
func (s *TimetableService) Update(ctx context.Context, scope Scope, entryID uuid.UUID, patch domain.EntryPatch) (domain.EntryDetail, error) {
	var updated domain.Entry
	var candidate domain.Candidate

	err := s.txManager.WithSerializableTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		existing, err := repos.Entries.GetByID(ctx, scope.SchoolID, entryID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrEntryNotFound
			}
			return err
		}

		merged, schedulingChanged := patch.Apply(existing)
		if merged.StartTime >= merged.EndTime || !merged.StartTime.Valid() || !merged.EndTime.Valid() {
			return ErrInvalidInput
		}
		if merged.ClassName == "" || merged.SubjectName == "" {
			return ErrInvalidInput
		}
		candidate = candidateOf(merged)

		if patch.TeacherID != nil && *patch.TeacherID != existing.TeacherID {
			if _, err := s.verifyTeacher(ctx, scope, merged.TeacherID); err != nil {
				return err
			}
		}

		if schedulingChanged {
			conflicts, err := detectConflicts(ctx, repos.Entries, candidate, &entryID)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return &ConflictError{Conflicts: conflicts}
			}
		}

		merged.UpdatedAt = s.clock()
		if err := repos.Entries.Update(ctx, merged); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrEntryNotFound
			}
			return err
		}
		updated = merged

		return repos.Outbox.Insert(ctx, domain.AuditEvent{
			EventType: domain.EventEntryUpdated,
			Payload:   entryEventPayload(merged, scope),
		})
	})
	if err != nil {
		if repository.IsExclusionViolation(err) {
			return domain.EntryDetail{}, s.conflictFromExclusion(ctx, scope, candidate, &entryID)
		}
		var conflictErr *ConflictError
		if errors.As(err, &conflictErr) {
			s.enrichConflicts(ctx, scope.SchoolID, conflictErr.Conflicts)
		}
		return domain.EntryDetail{}, err
	}

	teacherName := s.lookupTeacherName(ctx, scope.SchoolID, updated.TeacherID)
	return domain.EntryDetail{Entry: updated, TeacherName: teacherName}, nil
}

// Delete removes an entry scoped to the caller's school. Nothing references a
// timetable entry, so removal is unconditional once ownership is confirmed.
func (s *TimetableService) Delete(ctx context.Context, scope Scope, entryID uuid.UUID) error {
	return s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		existing, err := repos.Entries.GetByID(ctx, scope.SchoolID, entryID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrEntryNotFound
			}
			return err
		}

		deleted, err := repos.Entries.Delete(ctx, scope.SchoolID, entryID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrEntryNotFound
		}

		return repos.Outbox.Insert(ctx, domain.AuditEvent{
			EventType: domain.EventEntryDeleted,
			Payload:   entryEventPayload(existing, scope),
		})
	})
}

// ValidateCandidate answers whether a candidate could be published, without
// mutating anything. Unlike the write path it never stops at the first
// conflict kind: both scans report.
func (s *TimetableService) ValidateCandidate(ctx context.Context, scope Scope, input CreateEntryInput, excludeID *uuid.UUID) (ValidationResult, error) {
	if err := validateInput(input); err != nil {
		return ValidationResult{}, err
	}

	candidate := domain.Candidate{
		SchoolID:  scope.SchoolID,
		ClassName: input.ClassName,
		Section:   input.Section,
		TeacherID: input.TeacherID,
		Day:       input.Day,
		StartTime: input.StartTime,
		EndTime:   input.EndTime,
	}

	var conflicts []domain.Conflict
	err := s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		conflicts, err = detectConflicts(ctx, repos.Entries, candidate, excludeID)
		return err
	})
	if err != nil {
		return ValidationResult{}, err
	}

	s.enrichConflicts(ctx, scope.SchoolID, conflicts)
	return ValidationResult{HasConflicts: len(conflicts) > 0, Conflicts: conflicts}, nil
}

// List returns entries ordered by day then start time. Admins may widen the
// scope; the widening itself is written to the audit outbox.
func (s *TimetableService) List(ctx context.Context, scope Scope, opts ListOptions) ([]domain.Entry, error) {
	filter := repository.EntryFilter{
		ClassName: opts.ClassName,
		Section:   opts.Section,
		TeacherID: opts.TeacherID,
		Day:       opts.Day,
	}

	widened, err := applyScope(&filter, scope, opts.OverrideSchoolID, opts.AllSchools)
	if err != nil {
		return nil, err
	}

	var entries []domain.Entry
	err = s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		if widened {
			if err := auditScopeWidening(ctx, repos.Outbox, scope, opts.OverrideSchoolID, opts.AllSchools, "listEntries"); err != nil {
				return err
			}
		}
		var err error
		entries, err = repos.Entries.List(ctx, filter)
		return err
	})
	return entries, err
}

// GetByClassSection returns the weekly grid for one class/section.
func (s *TimetableService) GetByClassSection(ctx context.Context, scope Scope, className, section string) ([]domain.Entry, error) {
	if className == "" {
		return nil, ErrInvalidInput
	}

	schoolID := scope.SchoolID
	filter := repository.EntryFilter{
		SchoolID:  &schoolID,
		ClassName: &className,
		Section:   &section,
	}

	var entries []domain.Entry
	err := s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		entries, err = repos.Entries.List(ctx, filter)
		return err
	})
	return entries, err
}

// DeriveClasses lists the distinct class names currently scheduled.
func (s *TimetableService) DeriveClasses(ctx context.Context, scope Scope) ([]string, error) {
	var classes []string
	err := s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		classes, err = repos.Entries.DistinctClasses(ctx, scope.SchoolID)
		return err
	})
	return classes, err
}

// DeriveSections lists the distinct sections of one class.
func (s *TimetableService) DeriveSections(ctx context.Context, scope Scope, className string) ([]string, error) {
	if className == "" {
		return nil, ErrInvalidInput
	}
	var sections []string
	err := s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		sections, err = repos.Entries.DistinctSections(ctx, scope.SchoolID, className)
		return err
	})
	return sections, err
}

// DeriveTimeSlots lists the distinct (start, end) pairs actually in use.
func (s *TimetableService) DeriveTimeSlots(ctx context.Context, scope Scope) ([]domain.TimeSlot, error) {
	var slots []domain.TimeSlot
	err := s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		slots, err = repos.Entries.DistinctTimeSlots(ctx, scope.SchoolID)
		return err
	})
	return slots, err
}

// Stats aggregates entry counts by day, class and subject.
func (s *TimetableService) Stats(ctx context.Context, scope Scope) (ScheduleStats, error) {
	var stats ScheduleStats
	err := s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		if stats.ByDay, err = repos.Entries.CountByDay(ctx, scope.SchoolID); err != nil {
			return err
		}
		if stats.ByClass, err = repos.Entries.CountByClass(ctx, scope.SchoolID); err != nil {
			return err
		}
		stats.BySubject, err = repos.Entries.CountBySubject(ctx, scope.SchoolID)
		return err
	})
	return stats, err
}

// DrainOutbox hands back up to limit unpublished audit events and marks them
// published in the same transaction. The caller owns delivery (the process
// entry point logs them).
func (s *TimetableService) DrainOutbox(ctx context.Context, limit int) ([]repository.OutboxRecord, error) {
	var records []repository.OutboxRecord
	err := s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		records, err = repos.Outbox.ListUnpublished(ctx, limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(records))
		for _, record := range records {
			ids = append(ids, record.ID)
		}
		return repos.Outbox.MarkPublished(ctx, ids)
	})
	return records, err
}

func validateInput(input CreateEntryInput) error {
	if input.ClassName == "" || input.SubjectName == "" || input.TeacherID == uuid.Nil {
		return ErrInvalidInput
	}
	if !input.StartTime.Valid() || !input.EndTime.Valid() {
		return ErrInvalidInput
	}
	if input.StartTime >= input.EndTime {
		return ErrInvalidInput
	}
	if input.Day == "" {
		return ErrInvalidInput
	}
	return nil
}

// verifyTeacher checks cross-tenant membership through the directory. Admin
// callers skip the check but still get the display name when the directory
// answers.
func (s *TimetableService) verifyTeacher(ctx context.Context, scope Scope, teacherID uuid.UUID) (string, error) {
	teacher, err := s.directory.GetTeacher(ctx, scope.SchoolID, teacherID)
	if err != nil {
		if scope.Admin {
			return "", nil
		}
		if errors.Is(err, ErrTeacherNotFound) || errors.Is(err, ErrUnauthorized) {
			return "", ErrTeacherNotFound
		}
		return "", err
	}
	return teacher.FullName, nil
}

func (s *TimetableService) lookupTeacherName(ctx context.Context, schoolID, teacherID uuid.UUID) string {
	teacher, err := s.directory.GetTeacher(ctx, schoolID, teacherID)
	if err != nil {
		return ""
	}
	return teacher.FullName
}

// conflictFromExclusion recovers the blocking entries after the database
// exclusion constraint rejected a write from under the serializable check.
// The re-scan runs read committed; if the competing row is already gone the
// error stays a bare conflict.
func (s *TimetableService) conflictFromExclusion(ctx context.Context, scope Scope, candidate domain.Candidate, excludeID *uuid.UUID) error {
	var conflicts []domain.Conflict
	err := s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		conflicts, err = detectConflicts(ctx, repos.Entries, candidate, excludeID)
		return err
	})
	if err != nil {
		return &ConflictError{}
	}
	s.enrichConflicts(ctx, scope.SchoolID, conflicts)
	return &ConflictError{Conflicts: conflicts}
}

// enrichConflicts fills in blocking teachers' display names, best effort.
func (s *TimetableService) enrichConflicts(ctx context.Context, schoolID uuid.UUID, conflicts []domain.Conflict) {
	for i := range conflicts {
		conflicts[i].TeacherName = s.lookupTeacherName(ctx, schoolID, conflicts[i].Blocking.TeacherID)
	}
}

func candidateOf(entry domain.Entry) domain.Candidate {
	return domain.Candidate{
		SchoolID:  entry.SchoolID,
		ClassName: entry.ClassName,
		Section:   entry.Section,
		TeacherID: entry.TeacherID,
		Day:       entry.Day,
		StartTime: entry.StartTime,
		EndTime:   entry.EndTime,
	}
}

func entryEventPayload(entry domain.Entry, scope Scope) domain.EntryEventPayload {
	return domain.EntryEventPayload{
		EntryID:     entry.ID.String(),
		SchoolID:    entry.SchoolID.String(),
		ClassName:   entry.ClassName,
		Section:     entry.Section,
		SubjectName: entry.SubjectName,
		TeacherID:   entry.TeacherID.String(),
		Day:         entry.Day.String(),
		StartTime:   entry.StartTime.String(),
		EndTime:     entry.EndTime.String(),
		ActorID:     scope.UserID.String(),
	}
}

// applyScope resolves the effective school filter and reports whether the
// caller widened beyond their own school.
func applyScope(filter *repository.EntryFilter, scope Scope, override *uuid.UUID, allSchools bool) (bool, error) {
	switch {
	case allSchools:
		if !scope.Admin {
			return false, ErrUnauthorized
		}
		filter.SchoolID = nil
		return true, nil
	case override != nil && *override != scope.SchoolID:
		if !scope.Admin {
			return false, ErrUnauthorized
		}
		filter.SchoolID = override
		return true, nil
	default:
		schoolID := scope.SchoolID
		filter.SchoolID = &schoolID
		return false, nil
	}
}

func auditScopeWidening(
	ctx context.Context,
	outbox repository.OutboxRepository,
	scope Scope,
	override *uuid.UUID,
	allSchools bool,
	operation string,
) error {
	payload := domain.ScopeWidenedPayload{
		ActorID:    scope.UserID.String(),
		AllSchools: allSchools,
		Operation:  operation,
	}
	if override != nil {
		payload.SchoolID = override.String()
	}
	return outbox.Insert(ctx, domain.AuditEvent{
		EventType: domain.EventScopeWidened,
		Payload:   payload,
	})
}
