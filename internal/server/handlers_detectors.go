package server

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	detectordomain "github.com/smallbiznis/signalway/internal/detector/domain"
	"github.com/smallbiznis/signalway/internal/scheduler"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"go.uber.org/zap"
)

func (s *Server) handleListDetectors(c *gin.Context) {
	type detectorView struct {
		Type         string `json:"type"`
		Category     string `json:"category"`
		SourceSystem string `json:"source_system"`
		PerEntity    bool   `json:"per_entity"`
	}
	views := []detectorView{}
	for _, det := range s.detectors.All() {
		views = append(views, detectorView{
			Type:         det.Type(),
			Category:     string(det.Category()),
			SourceSystem: det.SourceSystem(),
			PerEntity:    det.PerEntity(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"detectors": views})
}

func (s *Server) handleRunDetector(c *gin.Context) {
	detectorType := c.Param("type")

	var body struct {
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

	report, err := s.scheduler.Run(c.Request.Context(), customerID, detectorType)
	if err != nil {
		switch {
		case errors.Is(err, detectordomain.ErrUnknownDetector):
			abortWithError(c, notFoundError("unknown_detector", "no such detector type"))
		case errors.Is(err, scheduler.ErrPassInProgress):
			abortWithError(c, conflictError("pass_in_progress", "a pass for this customer and detector is already running"))
		case errors.Is(err, signaldomain.ErrMissingConfig):
			abortWithError(c, newAPIError(http.StatusServiceUnavailable, "provider_unconfigured", "the detector's provider is not configured"))
		default:
			s.log.Error("detector pass failed",
				zap.String("detector", detectorType),
				zap.Error(err),
			)
			abortWithError(c, errInternal)
		}
		return
	}
	c.JSON(http.StatusOK, report)
}
