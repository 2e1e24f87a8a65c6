package handlers_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"school-timetable/internal/auth"
	"school-timetable/internal/domain"
	transport "school-timetable/internal/http"
	"school-timetable/internal/http/handlers"
	"school-timetable/internal/repository"
	"school-timetable/internal/service"
)

const testSecret = "handler-test-secret"

// Minimal in-memory stack behind the real service and router.
type stubStore struct {
	entries map[uuid.UUID]domain.Entry
}

type stubEntries struct {
	store *stubStore
}

func (r *stubEntries) List(_ context.Context, filter repository.EntryFilter) ([]domain.Entry, error) {
	var entries []domain.Entry
	for _, entry := range r.store.entries {
		if filter.SchoolID != nil && entry.SchoolID != *filter.SchoolID {
			continue
		}
		if filter.ClassName != nil && entry.ClassName != *filter.ClassName {
			continue
		}
		if filter.Section != nil && entry.Section != *filter.Section {
			continue
		}
		if filter.TeacherID != nil && entry.TeacherID != *filter.TeacherID {
			continue
		}
		if filter.Day != nil && entry.Day != *filter.Day {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Day.Order() != entries[j].Day.Order() {
			return entries[i].Day.Order() < entries[j].Day.Order()
		}
		return entries[i].StartTime < entries[j].StartTime
	})
	return entries, nil
}

func (r *stubEntries) GetByID(_ context.Context, schoolID, id uuid.UUID) (domain.Entry, error) {
	entry, ok := r.store.entries[id]
	if !ok || entry.SchoolID != schoolID {
		return domain.Entry{}, sql.ErrNoRows
	}
	return entry, nil
}

func (r *stubEntries) Insert(_ context.Context, entry domain.Entry) error {
	r.store.entries[entry.ID] = entry
	return nil
}

func (r *stubEntries) Update(_ context.Context, entry domain.Entry) error {
	if _, ok := r.store.entries[entry.ID]; !ok {
		return sql.ErrNoRows
	}
	r.store.entries[entry.ID] = entry
	return nil
}

func (r *stubEntries) Delete(_ context.Context, schoolID, id uuid.UUID) (bool, error) {
	entry, ok := r.store.entries[id]
	if !ok || entry.SchoolID != schoolID {
		return false, nil
	}
	delete(r.store.entries, id)
	return true, nil
}

func (r *stubEntries) ListForTeacherDay(ctx context.Context, schoolID, teacherID uuid.UUID, day domain.Weekday, excludeID *uuid.UUID) ([]domain.Entry, error) {
	entries, _ := r.List(ctx, repository.EntryFilter{SchoolID: &schoolID, TeacherID: &teacherID, Day: &day})
	return dropEntry(entries, excludeID), nil
}

func (r *stubEntries) ListForClassDay(ctx context.Context, schoolID uuid.UUID, className, section string, day domain.Weekday, excludeID *uuid.UUID) ([]domain.Entry, error) {
	entries, _ := r.List(ctx, repository.EntryFilter{SchoolID: &schoolID, ClassName: &className, Section: &section, Day: &day})
	return dropEntry(entries, excludeID), nil
}

func dropEntry(entries []domain.Entry, excludeID *uuid.UUID) []domain.Entry {
	if excludeID == nil {
		return entries
	}
	filtered := entries[:0]
	for _, entry := range entries {
		if entry.ID != *excludeID {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func (r *stubEntries) DistinctClasses(ctx context.Context, schoolID uuid.UUID) ([]string, error) {
	entries, _ := r.List(ctx, repository.EntryFilter{SchoolID: &schoolID})
	seen := make(map[string]bool)
	var classes []string
	for _, entry := range entries {
		if !seen[entry.ClassName] {
			seen[entry.ClassName] = true
			classes = append(classes, entry.ClassName)
		}
	}
	sort.Strings(classes)
	return classes, nil
}

func (r *stubEntries) DistinctSections(context.Context, uuid.UUID, string) ([]string, error) {
	return nil, nil
}

func (r *stubEntries) DistinctTimeSlots(context.Context, uuid.UUID) ([]domain.TimeSlot, error) {
	return nil, nil
}

func (r *stubEntries) CountByDay(context.Context, uuid.UUID) ([]domain.DayCount, error) {
	return nil, nil
}

func (r *stubEntries) CountByClass(context.Context, uuid.UUID) ([]domain.ClassCount, error) {
	return nil, nil
}

func (r *stubEntries) CountBySubject(context.Context, uuid.UUID) ([]domain.SubjectCount, error) {
	return nil, nil
}

type stubOutbox struct{}

func (stubOutbox) Insert(context.Context, domain.AuditEvent) error { return nil }
func (stubOutbox) ListUnpublished(context.Context, int) ([]repository.OutboxRecord, error) {
	return nil, nil
}
func (stubOutbox) MarkPublished(context.Context, []uuid.UUID) error { return nil }

type stubTxManager struct {
	store *stubStore
}

func (m *stubTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos repository.TxRepositories) error) error {
	return fn(ctx, repository.TxRepositories{Entries: &stubEntries{store: m.store}, Outbox: stubOutbox{}})
}

func (m *stubTxManager) WithSerializableTx(ctx context.Context, fn func(ctx context.Context, repos repository.TxRepositories) error) error {
	return m.WithTx(ctx, fn)
}

type stubDirectory struct {
	schoolID uuid.UUID
	teachers map[uuid.UUID]service.Teacher
}

func (d *stubDirectory) GetTeacher(_ context.Context, schoolID, teacherID uuid.UUID) (service.Teacher, error) {
	teacher, ok := d.teachers[teacherID]
	if !ok || schoolID != d.schoolID || !teacher.Active {
		return service.Teacher{}, service.ErrTeacherNotFound
	}
	return teacher, nil
}

type env struct {
	handler   http.Handler
	store     *stubStore
	directory *stubDirectory
	school    uuid.UUID
	teacher   uuid.UUID
	token     string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	school := uuid.New()
	teacher := uuid.New()
	store := &stubStore{entries: make(map[uuid.UUID]domain.Entry)}
	directory := &stubDirectory{
		schoolID: school,
		teachers: map[uuid.UUID]service.Teacher{
			teacher: {ID: teacher, FullName: "T. Okello", Active: true},
		},
	}

	svc := service.NewTimetableService(&stubTxManager{store: store}, directory)
	router := transport.NewRouter(
		handlers.NewTimetableHandler(svc),
		auth.Middleware(testSecret),
		func() error { return nil },
	)

	return &env{
		handler:   router.Handler(),
		store:     store,
		directory: directory,
		school:    school,
		teacher:   teacher,
		token:     signToken(t, school),
	}
}

func signToken(t *testing.T, schoolID uuid.UUID) string {
	t.Helper()
	claims := auth.Claims{
		UserID:   uuid.NewString(),
		SchoolID: schoolID.String(),
		Role:     "teacher",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func createBody(teacher uuid.UUID, class, day, start, end string) map[string]any {
	return map[string]any{
		"class_name":   class,
		"section":      "A",
		"subject_name": "Math",
		"teacher_id":   teacher.String(),
		"day":          day,
		"start_time":   start,
		"end_time":     end,
	}
}

func TestRequiresAuth(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/timetable", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHealthIsPublic(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateEntry(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/timetable", createBody(e.teacher, "5-A", "monday", "09:00", "10:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		ID          string `json:"id"`
		TeacherName string `json:"teacher_name"`
		StartTime   string `json:"start_time"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.TeacherName != "T. Okello" {
		t.Fatalf("expected teacher name, got %q", created.TeacherName)
	}
	if created.StartTime != "09:00" {
		t.Fatalf("expected start 09:00, got %q", created.StartTime)
	}
	if len(e.store.entries) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(e.store.entries))
	}
}

func TestCreateConflictResponse(t *testing.T) {
	e := newEnv(t)

	if rec := e.do(t, http.MethodPost, "/timetable", createBody(e.teacher, "5-A", "monday", "09:00", "10:00")); rec.Code != http.StatusCreated {
		t.Fatalf("seed create failed: %d", rec.Code)
	}

	rec := e.do(t, http.MethodPost, "/timetable", createBody(e.teacher, "6-B", "monday", "09:30", "10:15"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Error     string `json:"error"`
		Conflicts []struct {
			Kind     string `json:"kind"`
			Blocking struct {
				ClassName string `json:"class_name"`
			} `json:"blocking"`
		} `json:"conflicts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Error != "TEACHER_CONFLICT" {
		t.Fatalf("expected TEACHER_CONFLICT, got %q", body.Error)
	}
	if len(body.Conflicts) != 1 || body.Conflicts[0].Blocking.ClassName != "5-A" {
		t.Fatalf("unexpected conflicts: %+v", body.Conflicts)
	}
}

func TestCreateValidationErrors(t *testing.T) {
	e := newEnv(t)

	cases := map[string]map[string]any{
		"missing class":  createBody(e.teacher, "", "monday", "09:00", "10:00"),
		"bad day":        createBody(e.teacher, "5-A", "moonday", "09:00", "10:00"),
		"bad time":       createBody(e.teacher, "5-A", "monday", "9am", "10:00"),
		"inverted range": createBody(e.teacher, "5-A", "monday", "11:00", "10:00"),
		"bad teacher id": createBody(e.teacher, "5-A", "monday", "09:00", "10:00"),
		"unknown field":  createBody(e.teacher, "5-A", "monday", "09:00", "10:00"),
	}
	cases["bad teacher id"]["teacher_id"] = "not-a-uuid"
	cases["unknown field"]["room"] = "mystery"

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/timetable", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

// Teacher ids come from the directory service, which does not promise any
// particular UUID version.
func TestCreateAcceptsNonV4TeacherID(t *testing.T) {
	e := newEnv(t)
	legacy := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	e.directory.teachers[legacy] = service.Teacher{ID: legacy, FullName: "M. Ssali", Active: true}

	rec := e.do(t, http.MethodPost, "/timetable", createBody(legacy, "5-A", "monday", "09:00", "10:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateUnknownTeacher(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/timetable", createBody(uuid.New(), "5-A", "monday", "09:00", "10:00"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "TEACHER_NOT_FOUND" {
		t.Fatalf("expected TEACHER_NOT_FOUND, got %q", body["error"])
	}
}

func TestValidateEndpoint(t *testing.T) {
	e := newEnv(t)

	if rec := e.do(t, http.MethodPost, "/timetable", createBody(e.teacher, "5-A", "monday", "09:00", "10:00")); rec.Code != http.StatusCreated {
		t.Fatalf("seed create failed: %d", rec.Code)
	}

	rec := e.do(t, http.MethodPost, "/timetable/validate", createBody(e.teacher, "6-B", "monday", "09:30", "10:30"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		HasConflicts bool `json:"has_conflicts"`
		Conflicts    []struct {
			Kind string `json:"kind"`
		} `json:"conflicts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !body.HasConflicts || len(body.Conflicts) != 1 || body.Conflicts[0].Kind != "TEACHER_CONFLICT" {
		t.Fatalf("unexpected validation result: %+v", body)
	}

	if len(e.store.entries) != 1 {
		t.Fatalf("validate must not persist, have %d entries", len(e.store.entries))
	}
}

func TestUpdateAndDelete(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/timetable", createBody(e.teacher, "5-A", "monday", "09:00", "10:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	rec = e.do(t, http.MethodPatch, "/timetable/"+created.ID, map[string]any{"room_number": "Lab 2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch failed: %d: %s", rec.Code, rec.Body.String())
	}
	var updated struct {
		RoomNumber string `json:"room_number"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if updated.RoomNumber != "Lab 2" {
		t.Fatalf("expected room Lab 2, got %q", updated.RoomNumber)
	}

	rec = e.do(t, http.MethodDelete, "/timetable/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", rec.Code)
	}

	rec = e.do(t, http.MethodDelete, "/timetable/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete must 404, got %d", rec.Code)
	}
}

func TestListFiltersAndClasses(t *testing.T) {
	e := newEnv(t)

	if rec := e.do(t, http.MethodPost, "/timetable", createBody(e.teacher, "5-A", "monday", "09:00", "10:00")); rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/timetable", createBody(e.teacher, "6-B", "tuesday", "09:00", "10:00")); rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}

	rec := e.do(t, http.MethodGet, "/timetable?class_name=5-A", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list failed: %d", rec.Code)
	}
	var listed struct {
		Entries []struct {
			ClassName string `json:"class_name"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(listed.Entries) != 1 || listed.Entries[0].ClassName != "5-A" {
		t.Fatalf("unexpected filtered list: %+v", listed.Entries)
	}

	rec = e.do(t, http.MethodGet, "/timetable/classes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("classes failed: %d", rec.Code)
	}
	var classes struct {
		Classes []string `json:"classes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &classes); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(classes.Classes) != 2 {
		t.Fatalf("expected 2 classes, got %v", classes.Classes)
	}

	rec = e.do(t, http.MethodGet, "/timetable?all_schools=true", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin widening must 403, got %d", rec.Code)
	}
}
