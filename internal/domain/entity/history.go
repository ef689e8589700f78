package entity

import (
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is an immutable audit record appended on every transition
type HistoryEntry struct {
	ID         string    `json:"id"`
	ClaimID    string    `json:"claim_id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	FromStatus Status    `json:"from_status,omitempty"`
	ToStatus   Status    `json:"to_status"`
	Comment    string    `json:"comment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewHistoryEntry creates a history entry with a fresh ID
func NewHistoryEntry(claimID, action, actor string, from, to Status, comment string, at time.Time) *HistoryEntry {
	return &HistoryEntry{
		ID:         uuid.NewString(),
		ClaimID:    claimID,
		Action:     action,
		Actor:      actor,
		FromStatus: from,
		ToStatus:   to,
		Comment:    comment,
		Timestamp:  at,
	}
}
