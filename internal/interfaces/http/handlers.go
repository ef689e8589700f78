package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/claim-review/internal/application/service"
	"github.com/garyjia/claim-review/internal/application/workflow"
	"github.com/garyjia/claim-review/internal/domain/entity"
)

// maxRescoreBatch caps the claim IDs accepted by one rescore request
const maxRescoreBatch = 200

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine  workflow.WorkflowEngine
	scoring service.ScoringService
	health  HealthChecker
	logger  Logger
	now     func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine workflow.WorkflowEngine,
	scoring service.ScoringService,
	health HealthChecker,
	logger Logger,
) *Handlers {
	return &Handlers{
		engine:  engine,
		scoring: scoring,
		health:  health,
		logger:  logger,
		now:     time.Now,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database,omitempty"`
}

// SubmitClaimRequest is the body of POST /api/v1/claims.
// ExpenseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
type SubmitClaimRequest struct {
	EmployeeID      string          `json:"employee_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	ExpenseDate     string          `json:"expense_date"`
	ReceiptAttached bool            `json:"receipt_attached"`
}

// DecisionRequest is the body of POST /api/v1/claims/:id/decisions
type DecisionRequest struct {
	Decision string `json:"decision"`
	ActorID  string `json:"actor_id"`
	Comment  string `json:"comment"`
}

// ResubmitRequest is the body of POST /api/v1/claims/:id/resubmit; omitted fields keep their value
type ResubmitRequest struct {
	EmployeeID      string           `json:"employee_id"`
	Amount          *decimal.Decimal `json:"amount"`
	Category        *string          `json:"category"`
	Description     *string          `json:"description"`
	ReceiptAttached *bool            `json:"receipt_attached"`
	Comment         string           `json:"comment"`
}

// RescoreRequest is the body of POST /api/v1/claims/rescore
type RescoreRequest struct {
	ClaimIDs []string `json:"claim_ids"`
}

// RescoreItem reports the outcome for one claim of a batch rescore
type RescoreItem struct {
	ClaimID string        `json:"claim_id"`
	Claim   *entity.Claim `json:"claim,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// SweepResponse summarises one manually triggered sweep
type SweepResponse struct {
	Escalations  []entity.EscalationEvent `json:"escalations"`
	AutoRejected []string                 `json:"auto_rejected,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}

	if h.health != nil {
		if err := h.health.Health(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			response.Status = "unhealthy"
			response.Database = "unreachable"
			c.JSON(http.StatusServiceUnavailable, Response{
				Success: false,
				Data:    response,
				Error:   "database unreachable",
			})
			return
		}
		response.Database = "ok"
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// SubmitClaim handles POST /api/v1/claims
func (h *Handlers) SubmitClaim(c *gin.Context) {
	var req SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	expenseDate, err := parseExpenseDate(req.ExpenseDate)
	if err != nil {
		h.badRequest(c, "invalid expense_date", err)
		return
	}

	claim, err := h.engine.SubmitClaim(c.Request.Context(), entity.NewClaimInput{
		EmployeeID:      req.EmployeeID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Category:        req.Category,
		Description:     req.Description,
		ExpenseDate:     expenseDate,
		ReceiptAttached: req.ReceiptAttached,
	})
	if err != nil {
		h.writeError(c, "Failed to submit claim", err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    claim,
	})
}

// GetClaim handles GET /api/v1/claims/:id
func (h *Handlers) GetClaim(c *gin.Context) {
	id := c.Param("id")

	claim, err := h.engine.GetClaim(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to get claim", err, "claim_id", id)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    claim,
	})
}

// GetReview handles GET /api/v1/claims/:id/review
func (h *Handlers) GetReview(c *gin.Context) {
	id := c.Param("id")

	review, err := h.scoring.GetReview(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to get review", err, "claim_id", id)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    review,
	})
}

// Rescore handles POST /api/v1/claims/:id/score
func (h *Handlers) Rescore(c *gin.Context) {
	id := c.Param("id")

	claim, err := workflow.RetryOnStale(c.Request.Context(), func(ctx context.Context) (*entity.Claim, error) {
		return h.engine.Rescore(ctx, id)
	})
	if err != nil {
		h.writeError(c, "Failed to rescore claim", err, "claim_id", id)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    claim,
	})
}

// SubmitDecision handles POST /api/v1/claims/:id/decisions
func (h *Handlers) SubmitDecision(c *gin.Context) {
	id := c.Param("id")

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	decision := workflow.Decision(strings.ToLower(strings.TrimSpace(req.Decision)))
	if !decision.IsValid() {
		h.badRequest(c, "unknown decision "+strconv.Quote(req.Decision), nil)
		return
	}

	h.logger.Info("Applying decision", "claim_id", id, "decision", decision, "actor", req.ActorID)

	claim, err := workflow.RetryOnStale(c.Request.Context(), func(ctx context.Context) (*entity.Claim, error) {
		return h.engine.SubmitDecision(ctx, id, decision, req.ActorID, req.Comment)
	})
	if err != nil {
		h.writeError(c, "Failed to apply decision", err, "claim_id", id, "decision", decision)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    claim,
	})
}

// Resubmit handles POST /api/v1/claims/:id/resubmit
func (h *Handlers) Resubmit(c *gin.Context) {
	id := c.Param("id")

	var req ResubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	claim, err := h.engine.Resubmit(c.Request.Context(), id, req.EmployeeID, entity.Amendment{
		Amount:          req.Amount,
		Category:        req.Category,
		Description:     req.Description,
		ReceiptAttached: req.ReceiptAttached,
		Comment:         req.Comment,
	})
	if err != nil {
		h.writeError(c, "Failed to resubmit claim", err, "claim_id", id)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    claim,
	})
}

// RescoreClaims handles POST /api/v1/claims/rescore
func (h *Handlers) RescoreClaims(c *gin.Context) {
	var req RescoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}
	if len(req.ClaimIDs) == 0 {
		h.badRequest(c, "claim_ids is required", nil)
		return
	}
	if len(req.ClaimIDs) > maxRescoreBatch {
		h.badRequest(c, "too many claim_ids (max "+strconv.Itoa(maxRescoreBatch)+")", nil)
		return
	}

	results := h.engine.RescoreClaims(c.Request.Context(), req.ClaimIDs)

	items := make([]RescoreItem, 0, len(results))
	failed := 0
	for _, r := range results {
		item := RescoreItem{ClaimID: r.ClaimID, Claim: r.Claim}
		if r.Err != nil {
			item.Error = r.Err.Error()
			failed++
		}
		items = append(items, item)
	}

	h.logger.Info("Batch rescore finished", "requested", len(req.ClaimIDs), "failed", failed)

	c.JSON(http.StatusOK, Response{
		Success: failed == 0,
		Data:    items,
	})
}

// RunSweep handles POST /api/v1/escalations/sweep.
// ?auto_reject=true also runs the auto-reject sweep.
func (h *Handlers) RunSweep(c *gin.Context) {
	autoReject, err := strconv.ParseBool(c.DefaultQuery("auto_reject", "false"))
	if err != nil {
		h.badRequest(c, "invalid auto_reject", err)
		return
	}

	now := h.now()
	events, err := h.engine.RunEscalationSweep(c.Request.Context(), now)
	if err != nil {
		h.writeError(c, "Escalation sweep failed", err)
		return
	}

	response := SweepResponse{Escalations: events}
	if response.Escalations == nil {
		response.Escalations = []entity.EscalationEvent{}
	}

	if autoReject {
		rejected, err := h.engine.RunAutoRejectSweep(c.Request.Context(), now)
		if err != nil {
			h.writeError(c, "Auto-reject sweep failed", err)
			return
		}
		response.AutoRejected = rejected
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	if err != nil {
		h.logger.Error("Invalid request", "path", c.FullPath(), "error", err)
		msg = msg + ": " + err.Error()
	}
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
	})
}

// writeError maps a workflow error to its HTTP status. ErrNotFound is checked
// before ErrRepository because repository errors wrap it.
func (h *Handlers) writeError(c *gin.Context, msg string, err error, keysAndValues ...interface{}) {
	status := statusFor(err)

	fields := append([]interface{}{"status", status, "error", err}, keysAndValues...)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, fields...)
	} else {
		h.logger.Info(msg, fields...)
	}

	errMsg := err.Error()
	if status == http.StatusInternalServerError {
		errMsg = "internal error"
	}

	c.JSON(status, Response{
		Success: false,
		Error:   errMsg,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrMissingComment):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrIllegalTransition), errors.Is(err, entity.ErrStaleState):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseExpenseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
