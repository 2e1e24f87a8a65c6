package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"school-timetable/internal/auth"
	"school-timetable/internal/domain"
	"school-timetable/internal/service"
)

type TimetableHandler struct {
	service  *service.TimetableService
	validate *validator.Validate
}

func NewTimetableHandler(svc *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{
		service:  svc,
		validate: validator.New(),
	}
}

func (h *TimetableHandler) Register(r chi.Router) {
	r.Get("/timetable", h.handleList)
	r.Post("/timetable", h.handleCreate)
	r.Post("/timetable/validate", h.handleValidate)
	r.Patch("/timetable/{entryID}", h.handleUpdate)
	r.Delete("/timetable/{entryID}", h.handleDelete)
	r.Get("/timetable/class/{className}", h.handleClassGrid)
	r.Get("/timetable/classes", h.handleClasses)
	r.Get("/timetable/classes/{className}/sections", h.handleSections)
	r.Get("/timetable/time-slots", h.handleTimeSlots)
	r.Get("/timetable/stats", h.handleStats)
}

type createEntryRequest struct {
	ClassName   string  `json:"class_name" validate:"required"`
	Section     *string `json:"section"`
	SubjectName string  `json:"subject_name" validate:"required"`
	TeacherID   string  `json:"teacher_id" validate:"required,uuid"`
	Day         string  `json:"day" validate:"required"`
	StartTime   string  `json:"start_time" validate:"required"`
	EndTime     string  `json:"end_time" validate:"required"`
	RoomNumber  string  `json:"room_number"`
}

type validateEntryRequest struct {
	createEntryRequest
	ExcludeID *string `json:"exclude_id" validate:"omitempty,uuid"`
}

type updateEntryRequest struct {
	ClassName   *string `json:"class_name"`
	Section     *string `json:"section"`
	SubjectName *string `json:"subject_name"`
	TeacherID   *string `json:"teacher_id" validate:"omitempty,uuid"`
	Day         *string `json:"day"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	RoomNumber  *string `json:"room_number"`
}

type entryResponse struct {
	ID          string `json:"id"`
	SchoolID    string `json:"school_id"`
	ClassName   string `json:"class_name"`
	Section     string `json:"section"`
	SubjectName string `json:"subject_name"`
	TeacherID   string `json:"teacher_id"`
	TeacherName string `json:"teacher_name,omitempty"`
	Day         string `json:"day"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	RoomNumber  string `json:"room_number,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type conflictResponse struct {
	Kind        string        `json:"kind"`
	TeacherName string        `json:"teacher_name,omitempty"`
	Blocking    entryResponse `json:"blocking"`
}

func (h *TimetableHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req createEntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	input, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION")
		return
	}

	detail, err := h.service.Create(r.Context(), scope, input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entryDetailToResponse(detail))
}

func (h *TimetableHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req validateEntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	input, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION")
		return
	}

	var excludeID *uuid.UUID
	if req.ExcludeID != nil {
		parsed, err := uuid.Parse(*req.ExcludeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION")
			return
		}
		excludeID = &parsed
	}

	result, err := h.service.ValidateCandidate(r.Context(), scope, input, excludeID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	conflicts := make([]conflictResponse, 0, len(result.Conflicts))
	for _, conflict := range result.Conflicts {
		conflicts = append(conflicts, conflictToResponse(conflict))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"has_conflicts": result.HasConflicts,
		"conflicts":     conflicts,
	})
}

func (h *TimetableHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION")
		return
	}

	var req updateEntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	patch, err := req.toPatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION")
		return
	}

	detail, err := h.service.Update(r.Context(), scope, entryID, patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entryDetailToResponse(detail))
}

func (h *TimetableHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION")
		return
	}

	if err := h.service.Delete(r.Context(), scope, entryID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *TimetableHandler) handleList(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	opts, err := listOptionsFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION")
		return
	}

	entries, err := h.service.List(r.Context(), scope, opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entriesToResponse(entries))
}

func (h *TimetableHandler) handleClassGrid(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	className := chi.URLParam(r, "className")
	section := r.URL.Query().Get("section")

	entries, err := h.service.GetByClassSection(r.Context(), scope, className, section)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entriesToResponse(entries))
}

func (h *TimetableHandler) handleClasses(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	classes, err := h.service.DeriveClasses(r.Context(), scope)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if classes == nil {
		classes = []string{}
	}

	writeJSON(w, http.StatusOK, map[string][]string{"classes": classes})
}

func (h *TimetableHandler) handleSections(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	sections, err := h.service.DeriveSections(r.Context(), scope, chi.URLParam(r, "className"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if sections == nil {
		sections = []string{}
	}

	writeJSON(w, http.StatusOK, map[string][]string{"sections": sections})
}

func (h *TimetableHandler) handleTimeSlots(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	slots, err := h.service.DeriveTimeSlots(r.Context(), scope)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	type slotResponse struct {
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	payload := make([]slotResponse, 0, len(slots))
	for _, slot := range slots {
		payload = append(payload, slotResponse{StartTime: slot.StartTime.String(), EndTime: slot.EndTime.String()})
	}

	writeJSON(w, http.StatusOK, map[string]any{"time_slots": payload})
}

func (h *TimetableHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	stats, err := h.service.Stats(r.Context(), scope)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statsToResponse(stats))
}

// decode parses and validates a JSON body, writing the error response itself
// on failure.
func (h *TimetableHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION")
		return false
	}
	return true
}

func (h *TimetableHandler) writeServiceError(w http.ResponseWriter, err error) {
	var conflictErr *service.ConflictError
	switch {
	case errors.As(err, &conflictErr):
		code := "CONFLICT"
		if len(conflictErr.Conflicts) > 0 {
			code = string(conflictErr.Conflicts[0].Kind)
		}
		conflicts := make([]conflictResponse, 0, len(conflictErr.Conflicts))
		for _, conflict := range conflictErr.Conflicts {
			conflicts = append(conflicts, conflictToResponse(conflict))
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     code,
			"conflicts": conflicts,
		})
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "VALIDATION")
	case errors.Is(err, service.ErrTeacherNotFound):
		writeError(w, http.StatusNotFound, "TEACHER_NOT_FOUND")
	case errors.Is(err, service.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "ENTRY_NOT_FOUND")
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "FORBIDDEN")
	default:
		writeError(w, http.StatusInternalServerError, "STORAGE")
	}
}

func (r createEntryRequest) toInput() (service.CreateEntryInput, error) {
	day, err := domain.ParseWeekday(r.Day)
	if err != nil {
		return service.CreateEntryInput{}, err
	}
	startTime, err := domain.ParseTimeOfDay(r.StartTime)
	if err != nil {
		return service.CreateEntryInput{}, err
	}
	endTime, err := domain.ParseTimeOfDay(r.EndTime)
	if err != nil {
		return service.CreateEntryInput{}, err
	}
	teacherID, err := uuid.Parse(r.TeacherID)
	if err != nil {
		return service.CreateEntryInput{}, err
	}

	// Absent section and empty section are the same literal value.
	section := ""
	if r.Section != nil {
		section = *r.Section
	}

	return service.CreateEntryInput{
		ClassName:   r.ClassName,
		Section:     section,
		SubjectName: r.SubjectName,
		TeacherID:   teacherID,
		Day:         day,
		StartTime:   startTime,
		EndTime:     endTime,
		RoomNumber:  r.RoomNumber,
	}, nil
}

func (r updateEntryRequest) toPatch() (domain.EntryPatch, error) {
	var patch domain.EntryPatch
	patch.ClassName = r.ClassName
	patch.Section = r.Section
	patch.SubjectName = r.SubjectName
	patch.RoomNumber = r.RoomNumber

	if r.TeacherID != nil {
		teacherID, err := uuid.Parse(*r.TeacherID)
		if err != nil {
			return domain.EntryPatch{}, err
		}
		patch.TeacherID = &teacherID
	}
	if r.Day != nil {
		day, err := domain.ParseWeekday(*r.Day)
		if err != nil {
			return domain.EntryPatch{}, err
		}
		patch.Day = &day
	}
	if r.StartTime != nil {
		startTime, err := domain.ParseTimeOfDay(*r.StartTime)
		if err != nil {
			return domain.EntryPatch{}, err
		}
		patch.StartTime = &startTime
	}
	if r.EndTime != nil {
		endTime, err := domain.ParseTimeOfDay(*r.EndTime)
		if err != nil {
			return domain.EntryPatch{}, err
		}
		patch.EndTime = &endTime
	}

	return patch, nil
}

func listOptionsFrom(r *http.Request) (service.ListOptions, error) {
	query := r.URL.Query()
	var opts service.ListOptions

	if value := query.Get("class_name"); value != "" {
		opts.ClassName = &value
	}
	if query.Has("section") {
		value := query.Get("section")
		opts.Section = &value
	}
	if value := query.Get("teacher_id"); value != "" {
		teacherID, err := uuid.Parse(value)
		if err != nil {
			return service.ListOptions{}, err
		}
		opts.TeacherID = &teacherID
	}
	if value := query.Get("day"); value != "" {
		day, err := domain.ParseWeekday(value)
		if err != nil {
			return service.ListOptions{}, err
		}
		opts.Day = &day
	}
	if value := query.Get("school_id"); value != "" {
		schoolID, err := uuid.Parse(value)
		if err != nil {
			return service.ListOptions{}, err
		}
		opts.OverrideSchoolID = &schoolID
	}
	opts.AllSchools = query.Get("all_schools") == "true"

	return opts, nil
}

func scopeFrom(r *http.Request) (service.Scope, bool) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		return service.Scope{}, false
	}
	return service.Scope{
		UserID:   principal.UserID,
		SchoolID: principal.SchoolID,
		Admin:    principal.Admin,
	}, true
}

func entryToResponse(entry domain.Entry) entryResponse {
	return entryResponse{
		ID:          entry.ID.String(),
		SchoolID:    entry.SchoolID.String(),
		ClassName:   entry.ClassName,
		Section:     entry.Section,
		SubjectName: entry.SubjectName,
		TeacherID:   entry.TeacherID.String(),
		Day:         entry.Day.String(),
		StartTime:   entry.StartTime.String(),
		EndTime:     entry.EndTime.String(),
		RoomNumber:  entry.RoomNumber,
		CreatedAt:   entry.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   entry.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func entryDetailToResponse(detail domain.EntryDetail) entryResponse {
	response := entryToResponse(detail.Entry)
	response.TeacherName = detail.TeacherName
	return response
}

func entriesToResponse(entries []domain.Entry) map[string]any {
	payload := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, entryToResponse(entry))
	}
	return map[string]any{"entries": payload}
}

func conflictToResponse(conflict domain.Conflict) conflictResponse {
	return conflictResponse{
		Kind:        string(conflict.Kind),
		TeacherName: conflict.TeacherName,
		Blocking:    entryToResponse(conflict.Blocking),
	}
}

func statsToResponse(stats service.ScheduleStats) map[string]any {
	type countResponse struct {
		Key   string `json:"key"`
		Count int    `json:"count"`
	}
	byDay := make([]countResponse, 0, len(stats.ByDay))
	for _, row := range stats.ByDay {
		byDay = append(byDay, countResponse{Key: row.Day.String(), Count: row.Count})
	}
	byClass := make([]countResponse, 0, len(stats.ByClass))
	for _, row := range stats.ByClass {
		byClass = append(byClass, countResponse{Key: row.ClassName, Count: row.Count})
	}
	bySubject := make([]countResponse, 0, len(stats.BySubject))
	for _, row := range stats.BySubject {
		bySubject = append(bySubject, countResponse{Key: row.SubjectName, Count: row.Count})
	}
	return map[string]any{
		"by_day":     byDay,
		"by_class":   byClass,
		"by_subject": bySubject,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
