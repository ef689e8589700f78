// Package memory provides in-process repositories for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/domain/entity"
)

// ClaimRepository keeps claims in a map guarded by a mutex. Every returned claim is a copy.
type ClaimRepository struct {
	mu     sync.RWMutex
	claims map[string]*entity.Claim
}

// NewClaimRepository creates an empty repository
func NewClaimRepository() *ClaimRepository {
	return &ClaimRepository{claims: make(map[string]*entity.Claim)}
}

// Create stores a new claim together with its first history entry
func (r *ClaimRepository) Create(ctx context.Context, claim *entity.Claim, entry *entity.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := claim.Clone()
	stored.History = nil
	if entry != nil {
		stored.History = append(stored.History, *entry)
	}
	r.claims[claim.ID] = stored
	return nil
}

// Put stores a claim as-is, replacing any previous copy
func (r *ClaimRepository) Put(claim *entity.Claim) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims[claim.ID] = claim.Clone()
}

// GetClaim returns the claim with its full history
func (r *ClaimRepository) GetClaim(ctx context.Context, id string) (*entity.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.claims[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return c.Clone(), nil
}

// GetHistoricalClaims returns the employee's claims inside the window, most recent first
func (r *ClaimRepository) GetHistoricalClaims(ctx context.Context, employeeID string, window port.HistoryWindow) ([]entity.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]entity.Claim, 0)
	for _, c := range r.claims {
		if c.EmployeeID != employeeID {
			continue
		}
		if !window.Since.IsZero() && c.SubmittedAt.Before(window.Since) {
			continue
		}
		if !window.Until.IsZero() && c.SubmittedAt.After(window.Until) {
			continue
		}
		cp := c.Clone()
		cp.History = nil
		result = append(result, *cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].SubmittedAt.After(result[j].SubmittedAt)
	})
	if window.Limit > 0 && len(result) > window.Limit {
		result = result[:window.Limit]
	}
	return result, nil
}

// ListOpenClaims returns pending and info_requested claims, oldest status change first
func (r *ClaimRepository) ListOpenClaims(ctx context.Context, limit int) ([]*entity.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []*entity.Claim
	for _, c := range r.claims {
		if c.Status.IsOpen() {
			open = append(open, c.Clone())
		}
	}

	sort.Slice(open, func(i, j int) bool {
		if open[i].StatusChangedAt.Equal(open[j].StatusChangedAt) {
			return open[i].ID < open[j].ID
		}
		return open[i].StatusChangedAt.Before(open[j].StatusChangedAt)
	})
	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}
	return open, nil
}

// CountOpenClaims returns the number of open claims of an employee
func (r *ClaimRepository) CountOpenClaims(ctx context.Context, employeeID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.claims {
		if c.EmployeeID == employeeID && c.Status.IsOpen() {
			n++
		}
	}
	return n, nil
}

// SaveClaimTransition applies the write only while status and version still match
func (r *ClaimRepository) SaveClaimTransition(ctx context.Context, id string, t port.ClaimTransition) (*entity.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.claims[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	if c.Status != t.ExpectedStatus || c.Version != t.ExpectedVersion {
		return nil, &entity.StaleStateError{
			ClaimID:         id,
			ExpectedStatus:  t.ExpectedStatus,
			ExpectedVersion: t.ExpectedVersion,
		}
	}

	updated := c.Clone()
	updated.Apply(t.Fields)
	if updated.Status != t.NewStatus {
		updated.StatusChangedAt = t.At
	}
	updated.Status = t.NewStatus
	updated.Version++
	updated.UpdatedAt = t.At
	if t.Entry != nil {
		updated.History = append(updated.History, *t.Entry)
	}

	r.claims[id] = updated
	return updated.Clone(), nil
}
