package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/signalway/internal/alert/domain"
	auditdomain "github.com/smallbiznis/signalway/internal/audit/domain"
	"github.com/smallbiznis/signalway/internal/events"
	"github.com/smallbiznis/signalway/internal/urgency"
	"go.uber.org/zap"
)

// alertView is an alert row plus the urgency derived at read time.
// Scores are never persisted: they decay with age, so storing them
// would serve stale rankings.
type alertView struct {
	*alertdomain.Alert
	UrgencyScore int              `json:"urgency_score"`
	Severity     urgency.Severity `json:"severity"`
}

func (s *Server) handleListAlerts(c *gin.Context) {
	filter := alertdomain.ListFilter{
		Type:   strings.TrimSpace(c.Query("type")),
		Status: alertdomain.Status(strings.TrimSpace(c.Query("status"))),
	}
	if raw := strings.TrimSpace(c.Query("customer_id")); raw != "" {
		customerID, err := snowflake.ParseString(raw)
		if err != nil {
			abortWithError(c, invalidRequestError("customer_id must be a numeric id"))
			return
		}
		filter.CustomerID = customerID
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			abortWithError(c, invalidRequestError("limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	alerts, err := s.alerts.List(c.Request.Context(), s.db, filter)
	if err != nil {
		s.log.Error("list alerts failed", zap.Error(err))
		abortWithError(c, errInternal)
		return
	}

	now := s.clock.Now()
	views := make([]alertView, 0, len(alerts))
	for _, alert := range alerts {
		score := s.scoreAlert(alert, now)
		views = append(views, alertView{
			Alert:        alert,
			UrgencyScore: score,
			Severity:     urgency.ToSeverity(score),
		})
	}
	c.JSON(http.StatusOK, gin.H{"alerts": views})
}

func (s *Server) handleDismissAlert(c *gin.Context) {
	alertID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		abortWithError(c, invalidRequestError("alert id must be a numeric id"))
		return
	}

	// The reason body is optional.
	var body struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			abortWithError(c, invalidRequestError("request body must be valid json"))
			return
		}
	}

	ctx := c.Request.Context()
	alert, err := s.alerts.GetByID(ctx, s.db, alertID)
	if err != nil {
		if errors.Is(err, alertdomain.ErrAlertNotFound) {
			abortWithError(c, notFoundError("alert_not_found", "no such alert"))
			return
		}
		abortWithError(c, errInternal)
		return
	}

	actor := c.GetString("api_key_name")
	now := s.clock.Now()
	update := alertdomain.CloseUpdate{
		ID:     alertID,
		Status: alertdomain.StatusClosed,
		Reason: strings.TrimSpace(body.Reason),
		Context: map[string]any{
			"dismissed_by": actor,
		},
		ClosedAt: now,
	}
	if update.Reason != "" {
		update.Context["dismiss_reason"] = update.Reason
	}

	if err := s.alerts.Close(ctx, s.db, update); err != nil {
		if errors.Is(err, alertdomain.ErrAlertNotOpen) {
			abortWithError(c, conflictError("alert_not_open", "alert is already terminal"))
			return
		}
		s.log.Error("dismiss alert failed", zap.Error(err))
		abortWithError(c, errInternal)
		return
	}

	if err := s.outbox.Publish(ctx, s.db, events.AlertClosed, map[string]any{
		"alert_id":    alertID.String(),
		"customer_id": alert.CustomerID.String(),
		"type":        alert.Type,
		"reason":      update.Reason,
	}); err != nil {
		s.log.Warn("failed to record dismissal event", zap.Error(err))
	}

	s.audit.Record(ctx, auditdomain.Entry{
		CustomerID: alert.CustomerID,
		Actor:      actor,
		Action:     auditdomain.ActionAlertDismissed,
		Resource:   alertID.String(),
		Detail:     map[string]any{"type": alert.Type, "reason": update.Reason},
	})

	c.JSON(http.StatusOK, gin.H{"status": string(alertdomain.StatusClosed)})
}

// scoreAlert derives the 0-100 urgency for one row at read time.
func (s *Server) scoreAlert(alert *alertdomain.Alert, now time.Time) int {
	category := alertdomain.CategoryMedium
	if alert.Type == alertdomain.TypeIntegrationError {
		category = alertdomain.CategoryCritical
	} else if det, err := s.detectors.ByType(alert.Type); err == nil {
		category = det.Category()
	}

	var baseline *float64
	if value, ok := alert.Context["baseline_confidence"].(float64); ok {
		baseline = &value
	}

	overdueDays := 0
	if alert.ExpectedAt != nil && now.After(*alert.ExpectedAt) {
		overdueDays = int(now.Sub(*alert.ExpectedAt).Hours() / 24)
	}

	return urgency.Score(urgency.Input{
		Category:           category,
		Confidence:         alert.Confidence,
		BaselineConfidence: baseline,
		AmountAtRiskCents:  alert.AmountAtRiskCents,
		OverdueDays:        overdueDays,
		CreatedAt:          alert.CreatedAt,
		Now:                now,
	})
}
