package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the workflow status of a claim
type Status string

// IsTerminal returns true for statuses that allow no further transitions
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// IsOpen returns true for statuses the escalation sweep inspects
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusInfoRequested
}

// IsValid returns true if the status is known
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInfoRequested, StatusApproved, StatusRejected:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Claim is an expense reimbursement claim
type Claim struct {
	ID              string          `json:"id"`
	EmployeeID      string          `json:"employee_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	ExpenseDate     time.Time       `json:"expense_date"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	ReceiptAttached bool            `json:"receipt_attached"`

	Status          Status    `json:"status"`
	StatusChangedAt time.Time `json:"status_changed_at"`

	// FraudScore is nil until the claim has been scored
	FraudScore *int       `json:"fraud_score,omitempty"`
	FraudFlags []string   `json:"fraud_flags"`
	ScoredAt   *time.Time `json:"scored_at,omitempty"`

	// ApprovedBy/ApprovedAt record the actor and time of the terminal decision
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	RequiredApprovals int      `json:"required_approvals"`
	Approvals         []string `json:"approvals,omitempty"`

	Escalation EscalationState `json:"escalation"`
	History    []HistoryEntry  `json:"history"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EscalationState carries the escalation metadata of a claim
type EscalationState struct {
	CurrentApproverID string     `json:"current_approver_id,omitempty"`
	EscalatedAt       *time.Time `json:"escalated_at,omitempty"`
	Level             int        `json:"level"`
	FiredRules        []string   `json:"fired_rules,omitempty"`
}

// HasFired reports whether the escalation rule already fired for this claim
func (e EscalationState) HasFired(ruleID string) bool {
	for _, id := range e.FiredRules {
		if id == ruleID {
			return true
		}
	}
	return false
}

// HasFlag reports whether the claim carries the given fraud flag
func (c *Claim) HasFlag(code string) bool {
	for _, f := range c.FraudFlags {
		if f == code {
			return true
		}
	}
	return false
}

// HasApprovalFrom reports whether the reviewer already recorded a partial approval
func (c *Claim) HasApprovalFrom(actorID string) bool {
	for _, a := range c.Approvals {
		if a == actorID {
			return true
		}
	}
	return false
}

// NeededApprovals returns the number of distinct approvals required, at least one
func (c *Claim) NeededApprovals() int {
	if c.RequiredApprovals < 1 {
		return 1
	}
	return c.RequiredApprovals
}

// Clone returns a deep copy of the claim
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	cp := *c
	if c.FraudScore != nil {
		s := *c.FraudScore
		cp.FraudScore = &s
	}
	cp.ScoredAt = cloneTime(c.ScoredAt)
	cp.ApprovedAt = cloneTime(c.ApprovedAt)
	cp.FraudFlags = append([]string(nil), c.FraudFlags...)
	cp.Approvals = append([]string(nil), c.Approvals...)
	cp.History = append([]HistoryEntry(nil), c.History...)
	cp.Escalation.EscalatedAt = cloneTime(c.Escalation.EscalatedAt)
	cp.Escalation.FiredRules = append([]string(nil), c.Escalation.FiredRules...)
	return &cp
}

// Fields returns the mutable part of the claim
func (c *Claim) Fields() ClaimFields {
	cp := c.Clone()
	return ClaimFields{
		Amount:            cp.Amount,
		Category:          cp.Category,
		Description:       cp.Description,
		ReceiptAttached:   cp.ReceiptAttached,
		FraudScore:        cp.FraudScore,
		FraudFlags:        cp.FraudFlags,
		ScoredAt:          cp.ScoredAt,
		ApprovedBy:        cp.ApprovedBy,
		ApprovedAt:        cp.ApprovedAt,
		RequiredApprovals: cp.RequiredApprovals,
		Approvals:         cp.Approvals,
		Escalation:        cp.Escalation,
	}
}

// Apply copies the mutable fields onto the claim
func (c *Claim) Apply(f ClaimFields) {
	c.Amount = f.Amount
	c.Category = f.Category
	c.Description = f.Description
	c.ReceiptAttached = f.ReceiptAttached
	c.FraudScore = f.FraudScore
	c.FraudFlags = f.FraudFlags
	c.ScoredAt = f.ScoredAt
	c.ApprovedBy = f.ApprovedBy
	c.ApprovedAt = f.ApprovedAt
	c.RequiredApprovals = f.RequiredApprovals
	c.Approvals = f.Approvals
	c.Escalation = f.Escalation
}

// ClaimFields holds the columns a conditioned write may change.
// Identity, employee, dates and history are never rewritten.
type ClaimFields struct {
	Amount            decimal.Decimal
	Category          string
	Description       string
	ReceiptAttached   bool
	FraudScore        *int
	FraudFlags        []string
	ScoredAt          *time.Time
	ApprovedBy        string
	ApprovedAt        *time.Time
	RequiredApprovals int
	Approvals         []string
	Escalation        EscalationState
}

// NewClaimInput carries the data an employee submits
type NewClaimInput struct {
	EmployeeID      string          `json:"employee_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	ExpenseDate     time.Time       `json:"expense_date"`
	ReceiptAttached bool            `json:"receipt_attached"`
}

// Validate checks the required fields of a submission
func (in NewClaimInput) Validate(now time.Time) error {
	if strings.TrimSpace(in.EmployeeID) == "" {
		return NewValidationError("employee_id", "is required")
	}
	if !in.Amount.IsPositive() {
		return NewValidationError("amount", "must be greater than zero")
	}
	if len(strings.TrimSpace(in.Currency)) != 3 {
		return NewValidationError("currency", "must be a 3-letter ISO code")
	}
	if strings.TrimSpace(in.Category) == "" {
		return NewValidationError("category", "is required")
	}
	if in.ExpenseDate.IsZero() {
		return NewValidationError("expense_date", "is required")
	}
	if in.ExpenseDate.After(now) {
		return NewValidationError("expense_date", "cannot be in the future")
	}
	return nil
}

// Amendment carries the changes an employee makes when answering an info request
type Amendment struct {
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Category        *string          `json:"category,omitempty"`
	Description     *string          `json:"description,omitempty"`
	ReceiptAttached *bool            `json:"receipt_attached,omitempty"`
	Comment         string           `json:"comment,omitempty"`
}

// Validate checks the amended values
func (a Amendment) Validate() error {
	if a.Amount != nil && !a.Amount.IsPositive() {
		return NewValidationError("amount", "must be greater than zero")
	}
	if a.Category != nil && strings.TrimSpace(*a.Category) == "" {
		return NewValidationError("category", "cannot be empty")
	}
	return nil
}

// ApplyTo writes the amendment onto the mutable fields
func (a Amendment) ApplyTo(f *ClaimFields) {
	if a.Amount != nil {
		f.Amount = *a.Amount
	}
	if a.Category != nil {
		f.Category = strings.TrimSpace(*a.Category)
	}
	if a.Description != nil {
		f.Description = *a.Description
	}
	if a.ReceiptAttached != nil {
		f.ReceiptAttached = *a.ReceiptAttached
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
