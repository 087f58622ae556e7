package domain

import "time"

// AuditEntry is the persisted record of a session event.
type AuditEntry struct {
	ID       string
	Kind     SessionEventKind
	UserID   int64
	FamilyID string
	Role     Role
	At       time.Time
}

// NewAuditEntry records event under id.
func NewAuditEntry(id string, event SessionEvent) *AuditEntry {
	return &AuditEntry{
		ID:       id,
		Kind:     event.Kind,
		UserID:   event.UserID,
		FamilyID: event.FamilyID,
		Role:     event.Role,
		At:       event.At,
	}
}
