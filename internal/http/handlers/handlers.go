package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/civiclens/backend/internal/db"
	"github.com/civiclens/backend/internal/models"
	"github.com/civiclens/backend/internal/service"
)

type Handler struct {
	Store       *db.Store
	Submissions *service.SubmissionService
	Status      *service.StatusService
	Sweeper     *service.Sweeper
	Validator   *validator.Validate
	Logger      zerolog.Logger
	AdminKey    string
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type SubmitReportRequest struct {
	IssueType    string   `json:"issue_type" validate:"required,oneof=pothole garbage streetlight drainage road_damage other"`
	Title        string   `json:"title" validate:"required,max=200"`
	Description  string   `json:"description" validate:"max=4000"`
	Latitude     *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64 `json:"longitude" validate:"omitempty,longitude"`
	Address      string   `json:"address"`
	Municipality string   `json:"municipality"`
	SubmitterID  string   `json:"submitter_id" validate:"required"`
	Force        bool     `json:"force"`
}

// @Summary Submit a report
// @Description Rate-limit gate, duplicate scan, priority scoring, and SLA stamping before insert
// @Tags reports
// @Accept json
// @Produce json
// @Param request body SubmitReportRequest true "report"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Failure 429 {object} map[string]any
// @Router /api/reports [post]
func (h *Handler) SubmitReport(c *gin.Context) {
	var req SubmitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed JSON body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "latitude and longitude must be provided together", nil)
		return
	}

	result, err := h.Submissions.Submit(c.Request.Context(), service.SubmitInput{
		IssueType:    models.IssueType(req.IssueType),
		Title:        req.Title,
		Description:  req.Description,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Address:      req.Address,
		Municipality: req.Municipality,
		SubmitterID:  req.SubmitterID,
		Force:        req.Force,
	})
	if err != nil {
		h.Logger.Error().Err(err).Msg("submission failed")
		writeError(c, http.StatusInternalServerError, "SUBMISSION_ERROR", "Failed to submit report", err.Error())
		return
	}

	if !result.RateLimit.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"code":    "RATE_LIMITED",
				"message": result.RateLimit.Reason,
			},
			"rate_limit": result.RateLimit,
		})
		return
	}

	resp := gin.H{
		"report":     result.Report,
		"rate_limit": result.RateLimit,
	}
	if result.Duplicate != nil {
		resp["duplicate_warning"] = result.Duplicate
	}
	c.JSON(http.StatusCreated, resp)
}

// @Summary List reports
// @Tags reports
// @Produce json
// @Param status query string false "status filter"
// @Param issue_type query string false "issue type filter"
// @Param priority query string false "priority filter"
// @Param submitter_id query string false "submitter filter"
// @Param q query string false "text search"
// @Success 200 {object} map[string]any
// @Router /api/reports [get]
func (h *Handler) ReportsList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	reports, err := h.Store.ListReports(c.Request.Context(), db.ReportFilter{
		Status:      c.Query("status"),
		IssueType:   c.Query("issue_type"),
		Priority:    c.Query("priority"),
		SubmitterID: c.Query("submitter_id"),
		Query:       c.Query("q"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list reports", err.Error())
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}
	c.JSON(http.StatusOK, gin.H{"items": reports, "count": len(reports)})
}

// @Summary Report details
// @Tags reports
// @Produce json
// @Param id path string true "report id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/reports/{id} [get]
func (h *Handler) ReportDetails(c *gin.Context) {
	id := c.Param("id")
	report, err := h.Store.GetReport(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load report", err.Error())
		return
	}

	escalations, err := h.Store.ListEscalations(c.Request.Context(), id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load escalations", err.Error())
		return
	}
	audits, err := h.Store.ListAuditLogs(c.Request.Context(), "reports", id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load audit trail", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"report":      report,
		"escalations": escalations,
		"audit_trail": audits,
	})
}

type UpdateStatusRequest struct {
	Status     string  `json:"status" validate:"required,oneof=in_progress resolved rejected"`
	AssignedTo *string `json:"assigned_to"`
	Actor      string  `json:"actor"`
}

// @Summary Update report status
// @Description Staff transition through the report state machine
// @Tags reports
// @Accept json
// @Produce json
// @Param id path string true "report id"
// @Param request body UpdateStatusRequest true "transition"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/reports/{id}/status [patch]
func (h *Handler) UpdateReportStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed JSON body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = "staff"
	}

	report, err := h.Status.Transition(c.Request.Context(), c.Param("id"), models.Status(req.Status), actor, req.AssignedTo)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
		case errors.Is(err, service.ErrInvalidTransition):
			writeError(c, http.StatusConflict, "INVALID_TRANSITION", "Status transition not allowed", nil)
		default:
			writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to update status", err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

type ReopenRequest struct {
	SubmitterID string `json:"submitter_id" validate:"required"`
}

// @Summary Reopen a resolved report
// @Description Submitter-initiated; clears resolved_at and bumps the escalation level
// @Tags reports
// @Accept json
// @Produce json
// @Param id path string true "report id"
// @Param request body ReopenRequest true "reopen"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/reports/{id}/reopen [post]
func (h *Handler) ReopenReport(c *gin.Context) {
	var req ReopenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed JSON body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	report, err := h.Status.Reopen(c.Request.Context(), c.Param("id"), req.SubmitterID)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
		case errors.Is(err, service.ErrNotResolved):
			writeError(c, http.StatusConflict, "INVALID_TRANSITION", "Only resolved reports can be reopened", nil)
		case errors.Is(err, service.ErrNotSubmitter):
			writeError(c, http.StatusForbidden, "FORBIDDEN", "Only the original submitter can reopen", nil)
		default:
			writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to reopen report", err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// @Summary Rate limit standing
// @Description Current counters and remaining quota without consuming a submission
// @Tags rate-limit
// @Produce json
// @Param submitterID path string true "submitter id"
// @Success 200 {object} map[string]any
// @Router /api/rate-limit/{submitterID} [get]
func (h *Handler) RateLimitStatus(c *gin.Context) {
	rec, err := h.Store.GetRateLimit(c.Request.Context(), c.Param("submitterID"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load rate limit", err.Error())
		return
	}
	standing := service.PreviewRateLimit(rec, time.Now().UTC())
	c.JSON(http.StatusOK, gin.H{"record": rec, "standing": standing})
}

// @Summary Run the escalation sweep
// @Description Scans active reports past SLA thresholds and escalates overdue ones
// @Tags escalation
// @Produce json
// @Success 200 {object} service.SweepResult
// @Router /api/sweep [post]
func (h *Handler) RunSweep(c *gin.Context) {
	result, err := h.Sweeper.Run(c.Request.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("manual sweep failed")
		writeError(c, http.StatusInternalServerError, "SWEEP_ERROR", "Escalation sweep failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary SLA configuration
// @Tags config
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/sla-configs [get]
func (h *Handler) SLAConfigsList(c *gin.Context) {
	configs, err := h.Store.SLAConfigs(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load SLA configs", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": configs})
}

// @Summary Priority rules
// @Tags config
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/priority-rules [get]
func (h *Handler) PriorityRulesList(c *gin.Context) {
	rules, err := h.Store.PriorityRules(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load priority rules", err.Error())
		return
	}
	if rules == nil {
		rules = []models.PriorityRule{}
	}
	c.JSON(http.StatusOK, gin.H{"items": rules})
}

type BlockRequest struct {
	Until *time.Time `json:"until"`
}

// @Summary Block a submitter
// @Tags rate-limit
// @Accept json
// @Produce json
// @Param submitterID path string true "submitter id"
// @Success 200 {object} map[string]any
// @Router /api/rate-limit/{submitterID}/block [post]
func (h *Handler) BlockSubmitter(c *gin.Context) {
	var req BlockRequest
	// An empty or absent body means an indefinite block.
	_ = c.ShouldBindJSON(&req)
	id := c.Param("submitterID")
	if err := h.Store.SetRateLimitBlock(c.Request.Context(), id, true, req.Until); err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to block submitter", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"submitter_id": id, "blocked": true, "until": req.Until})
}

// @Summary Unblock a submitter
// @Tags rate-limit
// @Produce json
// @Param submitterID path string true "submitter id"
// @Success 200 {object} map[string]any
// @Router /api/rate-limit/{submitterID}/unblock [post]
func (h *Handler) UnblockSubmitter(c *gin.Context) {
	id := c.Param("submitterID")
	if err := h.Store.SetRateLimitBlock(c.Request.Context(), id, false, nil); err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to unblock submitter", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"submitter_id": id, "blocked": false})
}

type TrustRequest struct {
	Trusted *bool `json:"trusted"`
}

// @Summary Set submitter trust tier
// @Tags rate-limit
// @Accept json
// @Produce json
// @Param submitterID path string true "submitter id"
// @Success 200 {object} map[string]any
// @Router /api/rate-limit/{submitterID}/trust [post]
func (h *Handler) TrustSubmitter(c *gin.Context) {
	var req TrustRequest
	_ = c.ShouldBindJSON(&req)
	trusted := true
	if req.Trusted != nil {
		trusted = *req.Trusted
	}
	id := c.Param("submitterID")
	if err := h.Store.SetRateLimitTrusted(c.Request.Context(), id, trusted); err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to update trust tier", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"submitter_id": id, "trusted": trusted})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
