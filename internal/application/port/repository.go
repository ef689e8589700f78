package port

import (
	"context"
	"time"

	"github.com/garyjia/claim-review/internal/domain/entity"
)

// HistoryWindow bounds the historical claims loaded for scoring
type HistoryWindow struct {
	// Since excludes claims submitted before it; zero means no lower bound
	Since time.Time
	// Until excludes claims submitted after it; zero means no upper bound
	Until time.Time
	// Limit caps the number of claims returned, most recent first; 0 means no cap
	Limit int
}

// ClaimTransition is a conditioned write: it applies only while the stored claim
// still has ExpectedStatus and ExpectedVersion
type ClaimTransition struct {
	ExpectedStatus  entity.Status
	ExpectedVersion int64
	NewStatus       entity.Status
	Fields          entity.ClaimFields
	// Entry is appended to the claim history in the same atomic write
	Entry *entity.HistoryEntry
	At    time.Time
}

// ClaimRepository defines persistence operations for claims and their history
type ClaimRepository interface {
	// Create stores a new claim together with its first history entry
	Create(ctx context.Context, claim *entity.Claim, entry *entity.HistoryEntry) error

	// GetClaim returns the claim with its full history, or entity.ErrNotFound
	GetClaim(ctx context.Context, id string) (*entity.Claim, error)

	// GetHistoricalClaims returns the employee's claims inside the window, most recent first
	GetHistoricalClaims(ctx context.Context, employeeID string, window HistoryWindow) ([]entity.Claim, error)

	// ListOpenClaims returns pending and info_requested claims, oldest status change first
	ListOpenClaims(ctx context.Context, limit int) ([]*entity.Claim, error)

	// CountOpenClaims returns the number of open claims of an employee
	CountOpenClaims(ctx context.Context, employeeID string) (int, error)

	// SaveClaimTransition applies the conditioned write and returns the updated claim.
	// It fails with *entity.StaleStateError when the claim changed since it was read.
	SaveClaimTransition(ctx context.Context, id string, t ClaimTransition) (*entity.Claim, error)
}

// RuleRepository provides the active rule sets
type RuleRepository interface {
	// GetActiveApprovalRules returns active approval rules in configured order
	GetActiveApprovalRules(ctx context.Context) ([]entity.ApprovalRule, error)

	// GetActiveEscalationRules returns active escalation rules in configured order
	GetActiveEscalationRules(ctx context.Context) ([]entity.EscalationRule, error)
}
