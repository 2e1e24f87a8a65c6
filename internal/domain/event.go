package domain

// AuditEvent is an outbox row recorded in the same transaction as the change
// it describes.
type AuditEvent struct {
	EventType string
	Payload   any
}

// Event types written by the lifecycle manager.
const (
	EventEntryCreated = "TimetableEntryCreated"
	EventEntryUpdated = "TimetableEntryUpdated"
	EventEntryDeleted = "TimetableEntryDeleted"
	EventScopeWidened = "AdminScopeWidened"
)

type EntryEventPayload struct {
	EntryID     string `json:"entry_id"`
	SchoolID    string `json:"school_id"`
	ClassName   string `json:"class_name"`
	Section     string `json:"section,omitempty"`
	SubjectName string `json:"subject_name"`
	TeacherID   string `json:"teacher_id"`
	Day         string `json:"day"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	ActorID     string `json:"actor_id"`
}

type ScopeWidenedPayload struct {
	ActorID    string `json:"actor_id"`
	SchoolID   string `json:"school_id,omitempty"`
	AllSchools bool   `json:"all_schools"`
	Operation  string `json:"operation"`
}
