package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/garyjia/claim-review/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const claimColumns = `
	id, employee_id, amount, currency, category, description,
	expense_date, submitted_at, receipt_attached,
	status, status_changed_at,
	fraud_score, fraud_flags, scored_at,
	approved_by, approved_at,
	required_approvals, approvals,
	current_approver_id, escalated_at, escalation_level, fired_rules,
	version, created_at, updated_at`

// ClaimRepository implements port.ClaimRepository on SQLite
type ClaimRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *sqlite.DB, logger *zap.Logger) *ClaimRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the claim and its first history entry in one transaction
func (r *ClaimRepository) Create(ctx context.Context, claim *entity.Claim, entry *entity.HistoryEntry) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		flags, approvals, fired, err := encodeLists(claim.FraudFlags, claim.Approvals, claim.Escalation.FiredRules)
		if err != nil {
			return err
		}

		query := `INSERT INTO claims (` + claimColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

		_, err = r.db.Executor(ctx).ExecContext(ctx, query,
			claim.ID,
			claim.EmployeeID,
			claim.Amount,
			claim.Currency,
			claim.Category,
			claim.Description,
			claim.ExpenseDate.UTC(),
			claim.SubmittedAt.UTC(),
			claim.ReceiptAttached,
			claim.Status,
			claim.StatusChangedAt.UTC(),
			nullInt(claim.FraudScore),
			flags,
			nullTime(claim.ScoredAt),
			claim.ApprovedBy,
			nullTime(claim.ApprovedAt),
			claim.RequiredApprovals,
			approvals,
			claim.Escalation.CurrentApproverID,
			nullTime(claim.Escalation.EscalatedAt),
			claim.Escalation.Level,
			fired,
			claim.Version,
			claim.CreatedAt.UTC(),
			claim.UpdatedAt.UTC(),
		)
		if err != nil {
			r.logger.Error("Failed to create claim", zap.String("claim_id", claim.ID), zap.Error(err))
			return fmt.Errorf("failed to create claim: %w", err)
		}

		if entry != nil {
			return r.appendHistory(ctx, entry)
		}
		return nil
	})
}

// GetClaim returns the claim with its full history
func (r *ClaimRepository) GetClaim(ctx context.Context, id string) (*entity.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = ?`

	claim, err := scanClaim(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get claim", zap.String("claim_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	history, err := r.history(ctx, id)
	if err != nil {
		return nil, err
	}
	claim.History = history

	return claim, nil
}

// GetHistoricalClaims returns the employee's claims inside the window, most recent
// first. History entries are not loaded.
func (r *ClaimRepository) GetHistoricalClaims(ctx context.Context, employeeID string, window port.HistoryWindow) ([]entity.Claim, error) {
	var (
		conds = []string{"employee_id = ?"}
		args  = []interface{}{employeeID}
	)
	if !window.Since.IsZero() {
		conds = append(conds, "submitted_at >= ?")
		args = append(args, window.Since.UTC())
	}
	if !window.Until.IsZero() {
		conds = append(conds, "submitted_at <= ?")
		args = append(args, window.Until.UTC())
	}
	limit := window.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	query := `SELECT ` + claimColumns + ` FROM claims
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY submitted_at DESC, id
		LIMIT ?`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to load claim history",
			zap.String("employee_id", employeeID), zap.Error(err))
		return nil, fmt.Errorf("failed to load historical claims: %w", err)
	}
	defer rows.Close()

	claims := make([]entity.Claim, 0)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

// ListOpenClaims returns pending and info_requested claims, oldest status change first
func (r *ClaimRepository) ListOpenClaims(ctx context.Context, limit int) ([]*entity.Claim, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + claimColumns + ` FROM claims
		WHERE status IN (?, ?)
		ORDER BY status_changed_at, id
		LIMIT ?`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, entity.StatusPending, entity.StatusInfoRequested, limit)
	if err != nil {
		r.logger.Error("Failed to list open claims", zap.Error(err))
		return nil, fmt.Errorf("failed to list open claims: %w", err)
	}
	defer rows.Close()

	var claims []*entity.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// CountOpenClaims returns the number of open claims of an employee
func (r *ClaimRepository) CountOpenClaims(ctx context.Context, employeeID string) (int, error) {
	query := `SELECT COUNT(*) FROM claims WHERE employee_id = ? AND status IN (?, ?)`

	var n int
	err := r.db.Executor(ctx).QueryRowContext(ctx, query,
		employeeID, entity.StatusPending, entity.StatusInfoRequested).Scan(&n)
	if err != nil {
		r.logger.Error("Failed to count open claims", zap.String("employee_id", employeeID), zap.Error(err))
		return 0, fmt.Errorf("failed to count open claims: %w", err)
	}
	return n, nil
}

// SaveClaimTransition applies the conditioned write. The UPDATE only matches while
// status and version are unchanged; the history entry is inserted in the same transaction.
func (r *ClaimRepository) SaveClaimTransition(ctx context.Context, id string, t port.ClaimTransition) (*entity.Claim, error) {
	var updated *entity.Claim

	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		f := t.Fields
		flags, approvals, fired, err := encodeLists(f.FraudFlags, f.Approvals, f.Escalation.FiredRules)
		if err != nil {
			return err
		}

		query := `
			UPDATE claims SET
				status = ?,
				status_changed_at = CASE WHEN status <> ? THEN ? ELSE status_changed_at END,
				amount = ?, category = ?, description = ?, receipt_attached = ?,
				fraud_score = ?, fraud_flags = ?, scored_at = ?,
				approved_by = ?, approved_at = ?,
				required_approvals = ?, approvals = ?,
				current_approver_id = ?, escalated_at = ?, escalation_level = ?, fired_rules = ?,
				version = version + 1,
				updated_at = ?
			WHERE id = ? AND status = ? AND version = ?
		`

		at := t.At.UTC()
		result, err := r.db.Executor(ctx).ExecContext(ctx, query,
			t.NewStatus,
			t.NewStatus, at,
			f.Amount, f.Category, f.Description, f.ReceiptAttached,
			nullInt(f.FraudScore), flags, nullTime(f.ScoredAt),
			f.ApprovedBy, nullTime(f.ApprovedAt),
			f.RequiredApprovals, approvals,
			f.Escalation.CurrentApproverID, nullTime(f.Escalation.EscalatedAt), f.Escalation.Level, fired,
			at,
			id, t.ExpectedStatus, t.ExpectedVersion,
		)
		if err != nil {
			r.logger.Error("Failed to update claim", zap.String("claim_id", id), zap.Error(err))
			return fmt.Errorf("failed to update claim: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected == 0 {
			return r.missOrStale(ctx, id, t)
		}

		if t.Entry != nil {
			if err := r.appendHistory(ctx, t.Entry); err != nil {
				return err
			}
		}

		updated, err = r.GetClaim(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// missOrStale explains a conditioned write that matched no row
func (r *ClaimRepository) missOrStale(ctx context.Context, id string, t port.ClaimTransition) error {
	var exists int
	err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT 1 FROM claims WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check claim: %w", err)
	}

	r.logger.Info("Conditioned write lost the race",
		zap.String("claim_id", id),
		zap.String("expected_status", t.ExpectedStatus.String()),
		zap.Int64("expected_version", t.ExpectedVersion))
	return &entity.StaleStateError{
		ClaimID:         id,
		ExpectedStatus:  t.ExpectedStatus,
		ExpectedVersion: t.ExpectedVersion,
	}
}

func (r *ClaimRepository) appendHistory(ctx context.Context, h *entity.HistoryEntry) error {
	query := `
		INSERT INTO claim_history (id, claim_id, action, actor, from_status, to_status, comment, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		h.ID, h.ClaimID, h.Action, h.Actor, h.FromStatus, h.ToStatus, h.Comment, h.Timestamp.UTC())
	if err != nil {
		r.logger.Error("Failed to append history", zap.String("claim_id", h.ClaimID), zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (r *ClaimRepository) history(ctx context.Context, claimID string) ([]entity.HistoryEntry, error) {
	query := `
		SELECT id, claim_id, action, actor, from_status, to_status, comment, timestamp
		FROM claim_history
		WHERE claim_id = ?
		ORDER BY seq
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, claimID)
	if err != nil {
		r.logger.Error("Failed to get history", zap.String("claim_id", claimID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var entries []entity.HistoryEntry
	for rows.Next() {
		var h entity.HistoryEntry
		if err := rows.Scan(&h.ID, &h.ClaimID, &h.Action, &h.Actor, &h.FromStatus, &h.ToStatus, &h.Comment, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClaim(row rowScanner) (*entity.Claim, error) {
	var (
		c                                 entity.Claim
		score                             sql.NullInt64
		scoredAt, approvedAt, escalatedAt sql.NullTime
		flags, approvals, fired           string
	)

	err := row.Scan(
		&c.ID, &c.EmployeeID, &c.Amount, &c.Currency, &c.Category, &c.Description,
		&c.ExpenseDate, &c.SubmittedAt, &c.ReceiptAttached,
		&c.Status, &c.StatusChangedAt,
		&score, &flags, &scoredAt,
		&c.ApprovedBy, &approvedAt,
		&c.RequiredApprovals, &approvals,
		&c.Escalation.CurrentApproverID, &escalatedAt, &c.Escalation.Level, &fired,
		&c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if score.Valid {
		v := int(score.Int64)
		c.FraudScore = &v
	}
	c.ScoredAt = timePtr(scoredAt)
	c.ApprovedAt = timePtr(approvedAt)
	c.Escalation.EscalatedAt = timePtr(escalatedAt)

	if c.FraudFlags, err = decodeList(flags); err != nil {
		return nil, fmt.Errorf("claim %s fraud_flags: %w", c.ID, err)
	}
	if c.Approvals, err = decodeList(approvals); err != nil {
		return nil, fmt.Errorf("claim %s approvals: %w", c.ID, err)
	}
	if c.Escalation.FiredRules, err = decodeList(fired); err != nil {
		return nil, fmt.Errorf("claim %s fired_rules: %w", c.ID, err)
	}

	return &c, nil
}

func encodeLists(lists ...[]string) (string, string, string, error) {
	out := make([]string, 3)
	for i, l := range lists {
		if l == nil {
			l = []string{}
		}
		b, err := json.Marshal(l)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to encode list: %w", err)
		}
		out[i] = string(b)
	}
	return out[0], out[1], out[2], nil
}

func decodeList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var l []string
	if err := json.Unmarshal([]byte(s), &l); err != nil {
		return nil, err
	}
	if len(l) == 0 {
		return nil, nil
	}
	return l, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// Verify interface compliance
var _ port.ClaimRepository = (*ClaimRepository)(nil)
