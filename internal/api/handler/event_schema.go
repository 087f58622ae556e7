package handler

import (
	"time"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

type auditEntryResponse struct {
	ID       string                  `json:"id"`
	Kind     domain.SessionEventKind `json:"kind"`
	FamilyID string                  `json:"familyId,omitempty"`
	Role     domain.Role             `json:"role,omitempty"`
	At       time.Time               `json:"at"`
}

type auditHistoryResponse struct {
	UserID  int64                `json:"userId"`
	Entries []auditEntryResponse `json:"entries"`
}

func toAuditHistory(userID int64, entries []domain.AuditEntry) auditHistoryResponse {
	out := auditHistoryResponse{UserID: userID, Entries: make([]auditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, auditEntryResponse{
			ID:       e.ID,
			Kind:     e.Kind,
			FamilyID: e.FamilyID,
			Role:     e.Role,
			At:       e.At,
		})
	}
	return out
}
