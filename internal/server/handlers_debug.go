package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/signalway/internal/debugtoggle"
	debugdomain "github.com/smallbiznis/signalway/internal/debugtoggle/domain"
	"go.uber.org/zap"
)

func (s *Server) handleListToggles(c *gin.Context) {
	var customerID snowflake.ID
	if raw := strings.TrimSpace(c.Query("customer_id")); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			abortWithError(c, invalidRequestError("customer_id must be a numeric id"))
			return
		}
		customerID = parsed
	}

	overrides, err := s.toggles.List(c.Request.Context(), customerID)
	if err != nil {
		s.log.Error("list toggles failed", zap.Error(err))
		abortWithError(c, errInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"available": debugtoggle.Toggles(),
		"active":    overrides,
	})
}

func (s *Server) handleEnableToggle(c *gin.Context) {
	var body struct {
		Toggle     string `json:"toggle"`
		CustomerID string `json:"customer_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, invalidRequestError("request body must be valid json"))
		return
	}
	customerID, err := snowflake.ParseString(body.CustomerID)
	if err != nil || customerID == 0 {
		abortWithError(c, invalidRequestError("customer_id must be a numeric id"))
		return
	}

	override, err := s.toggles.Enable(c.Request.Context(), strings.TrimSpace(body.Toggle), customerID, c.GetString("api_key_name"))
	if err != nil {
		if errors.Is(err, debugdomain.ErrUnknownToggle) {
			abortWithError(c, invalidRequestError("unknown toggle"))
			return
		}
		s.log.Error("enable toggle failed", zap.Error(err))
		abortWithError(c, errInternal)
		return
	}
	c.JSON(http.StatusOK, override)
}

func (s *Server) handleDisableToggle(c *gin.Context) {
	toggle := strings.TrimSpace(c.Param("toggle"))
	customerID, err := snowflake.ParseString(strings.TrimSpace(c.Query("customer_id")))
	if err != nil || customerID == 0 {
		abortWithError(c, invalidRequestError("customer_id must be a numeric id"))
		return
	}

	err = s.toggles.Disable(c.Request.Context(), toggle, customerID, c.GetString("api_key_name"))
	if err != nil {
		if errors.Is(err, debugdomain.ErrUnknownToggle) {
			abortWithError(c, invalidRequestError("unknown toggle"))
			return
		}
		s.log.Error("disable toggle failed", zap.Error(err))
		abortWithError(c, errInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disabled": toggle})
}
