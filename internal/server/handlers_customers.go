package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/signalway/internal/audit/domain"
	customerdomain "github.com/smallbiznis/signalway/internal/customer/domain"
	"go.uber.org/zap"
)

func customerIDParam(c *gin.Context) (snowflake.ID, bool) {
	customerID, err := snowflake.ParseString(c.Param("id"))
	if err != nil || customerID == 0 {
		abortWithError(c, invalidRequestError("customer id must be a numeric id"))
		return 0, false
	}
	return customerID, true
}

func (s *Server) handleGetSettings(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}

	settings, err := s.customers.EnsureSettings(c.Request.Context(), s.db, customerID, s.clock.Now())
	if err != nil {
		s.log.Error("get settings failed", zap.Error(err))
		abortWithError(c, errInternal)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handlePatchSettings(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}

	var body struct {
		GraceDays           *int     `json:"grace_days"`
		DriftThresholdPct   *float64 `json:"drift_threshold_pct"`
		LookbackDays        *int     `json:"lookback_days"`
		LowConfidenceCutoff *float64 `json:"low_confidence_cutoff"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, invalidRequestError("request body must be valid json"))
		return
	}

	ctx := c.Request.Context()
	settings, err := s.customers.PatchSettings(ctx, s.db, customerID, customerdomain.SettingsPatch{
		GraceDays:           body.GraceDays,
		DriftThresholdPct:   body.DriftThresholdPct,
		LookbackDays:        body.LookbackDays,
		LowConfidenceCutoff: body.LowConfidenceCutoff,
	}, s.clock.Now())
	if err != nil {
		if errors.Is(err, customerdomain.ErrInvalidSettings) {
			abortWithError(c, invalidRequestError("settings values out of range"))
			return
		}
		s.log.Error("patch settings failed", zap.Error(err))
		abortWithError(c, errInternal)
		return
	}

	s.audit.Record(ctx, auditdomain.Entry{
		CustomerID: customerID,
		Actor:      c.GetString("api_key_name"),
		Action:     auditdomain.ActionSettingsPatched,
		Resource:   customerID.String(),
		Detail: map[string]any{
			"grace_days":            settings.GraceDays,
			"drift_threshold_pct":   settings.DriftThresholdPct,
			"lookback_days":         settings.LookbackDays,
			"low_confidence_cutoff": settings.LowConfidenceCutoff,
		},
	})
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleGetState(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}

	state, err := s.customers.GetState(c.Request.Context(), s.db, customerID)
	if err != nil {
		if errors.Is(err, customerdomain.ErrCustomerNotFound) {
			abortWithError(c, notFoundError("customer_not_found", "no state recorded for customer"))
			return
		}
		s.log.Error("get state failed", zap.Error(err))
		abortWithError(c, errInternal)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handlePutState(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}

	var body struct {
		Name   string  `json:"name"`
		Status string  `json:"status"`
		Reason *string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, invalidRequestError("request body must be valid json"))
		return
	}
	status := customerdomain.CustomerStatus(strings.TrimSpace(body.Status))
	if !customerdomain.ValidStatus(status) {
		abortWithError(c, invalidRequestError("status must be one of active, onboarding, paused, inactive"))
		return
	}

	ctx := c.Request.Context()
	now := s.clock.Now()
	state := &customerdomain.CustomerState{
		CustomerID: customerID,
		Name:       strings.TrimSpace(body.Name),
		Status:     status,
		Reason:     body.Reason,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.customers.UpsertState(ctx, s.db, state); err != nil {
		s.log.Error("put state failed", zap.Error(err))
		abortWithError(c, errInternal)
		return
	}

	s.audit.Record(ctx, auditdomain.Entry{
		CustomerID: customerID,
		Actor:      c.GetString("api_key_name"),
		Action:     auditdomain.ActionStateUpserted,
		Resource:   customerID.String(),
		Detail:     map[string]any{"status": string(status)},
	})
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleListAudit(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}

	logs, err := s.audit.ListByCustomer(c.Request.Context(), customerID, 0)
	if err != nil {
		s.log.Error("list audit failed", zap.Error(err))
		abortWithError(c, errInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs})
}
