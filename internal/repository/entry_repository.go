package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"school-timetable/internal/domain"
)

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EntryFilter narrows a listing. A nil SchoolID means all schools and is only
// reachable through the admin override path.
type EntryFilter struct {
	SchoolID  *uuid.UUID
	ClassName *string
	Section   *string
	TeacherID *uuid.UUID
	Day       *domain.Weekday
}

type EntryRepository interface {
	List(ctx context.Context, filter EntryFilter) ([]domain.Entry, error)
	GetByID(ctx context.Context, schoolID, id uuid.UUID) (domain.Entry, error)
	Insert(ctx context.Context, entry domain.Entry) error
	Update(ctx context.Context, entry domain.Entry) error
	Delete(ctx context.Context, schoolID, id uuid.UUID) (bool, error)

	ListForTeacherDay(ctx context.Context, schoolID, teacherID uuid.UUID, day domain.Weekday, excludeID *uuid.UUID) ([]domain.Entry, error)
	ListForClassDay(ctx context.Context, schoolID uuid.UUID, className, section string, day domain.Weekday, excludeID *uuid.UUID) ([]domain.Entry, error)

	DistinctClasses(ctx context.Context, schoolID uuid.UUID) ([]string, error)
	DistinctSections(ctx context.Context, schoolID uuid.UUID, className string) ([]string, error)
	DistinctTimeSlots(ctx context.Context, schoolID uuid.UUID) ([]domain.TimeSlot, error)

	CountByDay(ctx context.Context, schoolID uuid.UUID) ([]domain.DayCount, error)
	CountByClass(ctx context.Context, schoolID uuid.UUID) ([]domain.ClassCount, error)
	CountBySubject(ctx context.Context, schoolID uuid.UUID) ([]domain.SubjectCount, error)
}

type EntryPostgresRepository struct {
	execer Execer
}

func NewEntryPostgresRepository(execer Execer) *EntryPostgresRepository {
	return &EntryPostgresRepository{execer: execer}
}

const entryColumns = `id, school_id, class_name, section, subject_name, teacher_id, day, start_time, end_time, room_number, created_at, updated_at`

// dayOrder sorts monday..sunday without a lookup table.
const dayOrder = `array_position(ARRAY['monday','tuesday','wednesday','thursday','friday','saturday','sunday'], day)`

func (r *EntryPostgresRepository) List(ctx context.Context, filter EntryFilter) ([]domain.Entry, error) {
	var (
		conditions []string
		args       []any
	)
	addCondition := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, column+" = $"+strconv.Itoa(len(args)))
	}

	if filter.SchoolID != nil {
		addCondition("school_id", *filter.SchoolID)
	}
	if filter.ClassName != nil {
		addCondition("class_name", *filter.ClassName)
	}
	if filter.Section != nil {
		addCondition("section", *filter.Section)
	}
	if filter.TeacherID != nil {
		addCondition("teacher_id", *filter.TeacherID)
	}
	if filter.Day != nil {
		addCondition("day", string(*filter.Day))
	}

	query := `SELECT ` + entryColumns + ` FROM timetable.entries`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY ` + dayOrder + `, start_time ASC`

	rows, err := r.execer.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *EntryPostgresRepository) GetByID(ctx context.Context, schoolID, id uuid.UUID) (domain.Entry, error) {
	const query = `
SELECT ` + entryColumns + `
FROM timetable.entries
WHERE school_id = $1 AND id = $2
`
	row := r.execer.QueryRowContext(ctx, query, schoolID, id)
	return scanEntry(row)
}

func (r *EntryPostgresRepository) Insert(ctx context.Context, entry domain.Entry) error {
	const query = `
INSERT INTO timetable.entries (
	id,
	school_id,
	class_name,
	section,
	subject_name,
	teacher_id,
	day,
	start_time,
	end_time,
	room_number,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
`
	_, err := r.execer.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.SchoolID,
		entry.ClassName,
		entry.Section,
		entry.SubjectName,
		entry.TeacherID,
		string(entry.Day),
		entry.StartTime.String(),
		entry.EndTime.String(),
		entry.RoomNumber,
	)
	return err
}

func (r *EntryPostgresRepository) Update(ctx context.Context, entry domain.Entry) error {
	const query = `
UPDATE timetable.entries
SET
	class_name = $1,
	section = $2,
	subject_name = $3,
	teacher_id = $4,
	day = $5,
	start_time = $6,
	end_time = $7,
	room_number = $8,
	updated_at = now()
WHERE school_id = $9 AND id = $10
`
	result, err := r.execer.ExecContext(
		ctx,
		query,
		entry.ClassName,
		entry.Section,
		entry.SubjectName,
		entry.TeacherID,
		string(entry.Day),
		entry.StartTime.String(),
		entry.EndTime.String(),
		entry.RoomNumber,
		entry.SchoolID,
		entry.ID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *EntryPostgresRepository) Delete(ctx context.Context, schoolID, id uuid.UUID) (bool, error) {
	const query = `DELETE FROM timetable.entries WHERE school_id = $1 AND id = $2`
	result, err := r.execer.ExecContext(ctx, query, schoolID, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *EntryPostgresRepository) ListForTeacherDay(
	ctx context.Context,
	schoolID, teacherID uuid.UUID,
	day domain.Weekday,
	excludeID *uuid.UUID,
) ([]domain.Entry, error) {
	query := `
SELECT ` + entryColumns + `
FROM timetable.entries
WHERE school_id = $1 AND teacher_id = $2 AND day = $3
`
	args := []any{schoolID, teacherID, string(day)}
	if excludeID != nil {
		query += ` AND id <> $4`
		args = append(args, *excludeID)
	}
	query += ` ORDER BY start_time ASC`

	rows, err := r.execer.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *EntryPostgresRepository) ListForClassDay(
	ctx context.Context,
	schoolID uuid.UUID,
	className, section string,
	day domain.Weekday,
	excludeID *uuid.UUID,
) ([]domain.Entry, error) {
	query := `
SELECT ` + entryColumns + `
FROM timetable.entries
WHERE school_id = $1 AND class_name = $2 AND section = $3 AND day = $4
`
	args := []any{schoolID, className, section, string(day)}
	if excludeID != nil {
		query += ` AND id <> $5`
		args = append(args, *excludeID)
	}
	query += ` ORDER BY start_time ASC`

	rows, err := r.execer.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *EntryPostgresRepository) DistinctClasses(ctx context.Context, schoolID uuid.UUID) ([]string, error) {
	const query = `
SELECT DISTINCT class_name
FROM timetable.entries
WHERE school_id = $1
ORDER BY class_name ASC
`
	return r.queryStrings(ctx, query, schoolID)
}

func (r *EntryPostgresRepository) DistinctSections(ctx context.Context, schoolID uuid.UUID, className string) ([]string, error) {
	const query = `
SELECT DISTINCT section
FROM timetable.entries
WHERE school_id = $1 AND class_name = $2
ORDER BY section ASC
`
	return r.queryStrings(ctx, query, schoolID, className)
}

func (r *EntryPostgresRepository) DistinctTimeSlots(ctx context.Context, schoolID uuid.UUID) ([]domain.TimeSlot, error) {
	const query = `
SELECT DISTINCT start_time, end_time
FROM timetable.entries
WHERE school_id = $1
ORDER BY start_time ASC, end_time ASC
`
	rows, err := r.execer.QueryContext(ctx, query, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []domain.TimeSlot
	for rows.Next() {
		var startRaw, endRaw string
		if err := rows.Scan(&startRaw, &endRaw); err != nil {
			return nil, err
		}
		slot, err := parseTimeSlot(startRaw, endRaw)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return slots, nil
}

func (r *EntryPostgresRepository) CountByDay(ctx context.Context, schoolID uuid.UUID) ([]domain.DayCount, error) {
	const query = `
SELECT day, count(*)
FROM timetable.entries
WHERE school_id = $1
GROUP BY day
ORDER BY ` + dayOrder + `
`
	rows, err := r.execer.QueryContext(ctx, query, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.DayCount
	for rows.Next() {
		var row domain.DayCount
		var day string
		if err := rows.Scan(&day, &row.Count); err != nil {
			return nil, err
		}
		row.Day = domain.Weekday(day)
		counts = append(counts, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

func (r *EntryPostgresRepository) CountByClass(ctx context.Context, schoolID uuid.UUID) ([]domain.ClassCount, error) {
	const query = `
SELECT class_name, count(*)
FROM timetable.entries
WHERE school_id = $1
GROUP BY class_name
ORDER BY class_name ASC
`
	rows, err := r.execer.QueryContext(ctx, query, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.ClassCount
	for rows.Next() {
		var row domain.ClassCount
		if err := rows.Scan(&row.ClassName, &row.Count); err != nil {
			return nil, err
		}
		counts = append(counts, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

func (r *EntryPostgresRepository) CountBySubject(ctx context.Context, schoolID uuid.UUID) ([]domain.SubjectCount, error) {
	const query = `
SELECT subject_name, count(*)
FROM timetable.entries
WHERE school_id = $1
GROUP BY subject_name
ORDER BY subject_name ASC
`
	rows, err := r.execer.QueryContext(ctx, query, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.SubjectCount
	for rows.Next() {
		var row domain.SubjectCount
		if err := rows.Scan(&row.SubjectName, &row.Count); err != nil {
			return nil, err
		}
		counts = append(counts, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

func (r *EntryPostgresRepository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.execer.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return values, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (domain.Entry, error) {
	var entry domain.Entry
	var day, startRaw, endRaw string
	var section, roomNumber sql.NullString
	var createdAt, updatedAt time.Time
	if err := row.Scan(
		&entry.ID,
		&entry.SchoolID,
		&entry.ClassName,
		&section,
		&entry.SubjectName,
		&entry.TeacherID,
		&day,
		&startRaw,
		&endRaw,
		&roomNumber,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Entry{}, err
	}

	entry.Day = domain.Weekday(day)
	entry.Section = section.String
	entry.RoomNumber = roomNumber.String
	entry.CreatedAt = createdAt
	entry.UpdatedAt = updatedAt

	startTime, err := domain.ParseTimeOfDay(startRaw)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("stored start_time: %w", err)
	}
	endTime, err := domain.ParseTimeOfDay(endRaw)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("stored end_time: %w", err)
	}
	entry.StartTime = startTime
	entry.EndTime = endTime

	return entry, nil
}

func scanEntries(rows *sql.Rows) ([]domain.Entry, error) {
	var entries []domain.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseTimeSlot(startRaw, endRaw string) (domain.TimeSlot, error) {
	start, err := domain.ParseTimeOfDay(startRaw)
	if err != nil {
		return domain.TimeSlot{}, fmt.Errorf("stored start_time: %w", err)
	}
	end, err := domain.ParseTimeOfDay(endRaw)
	if err != nil {
		return domain.TimeSlot{}, fmt.Errorf("stored end_time: %w", err)
	}
	return domain.TimeSlot{StartTime: start, EndTime: end}, nil
}
