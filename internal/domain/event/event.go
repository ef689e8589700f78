package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by the workflow and the notifiers
const (
	KeyClaimID       = "claim_id"
	KeyEmployeeID    = "employee_id"
	KeyActor         = "actor"
	KeyStatus        = "status"
	KeyComment       = "comment"
	KeyAmount        = "amount"
	KeyCurrency      = "currency"
	KeyFraudScore    = "fraud_score"
	KeyLevel         = "escalation_level"
	KeyNewApprover   = "new_approver_id"
	KeyRuleIDs       = "rule_ids"
	KeySuggestAction = "suggested_action"
)

// Event is a notification-worthy fact about a claim
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	ClaimID   string                 `json:"claim_id"`
	Recipient string                 `json:"recipient"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent creates an event addressed to recipient. The claim ID is taken from the payload.
func NewEvent(eventType Type, recipient string, payload map[string]interface{}, at time.Time) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	e := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Recipient: recipient,
		Payload:   payload,
		Timestamp: at,
	}
	e.ClaimID = e.GetPayloadString(KeyClaimID)
	return e
}

// WithPayload returns a copy of the event with key set (the receiver is not modified)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
