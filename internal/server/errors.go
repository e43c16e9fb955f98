package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e apiError) Error() string { return e.Message }

func newAPIError(status int, code, message string) apiError {
	return apiError{Status: status, Code: code, Message: message}
}

func invalidRequestError(message string) apiError {
	return newAPIError(http.StatusBadRequest, "invalid_request", message)
}

func notFoundError(code, message string) apiError {
	return newAPIError(http.StatusNotFound, code, message)
}

func conflictError(code, message string) apiError {
	return newAPIError(http.StatusConflict, code, message)
}

var (
	errUnauthorized = newAPIError(http.StatusUnauthorized, "unauthorized", "missing or invalid api key")
	errRateLimited  = newAPIError(http.StatusTooManyRequests, "rate_limited", "too many requests")
	errInternal     = newAPIError(http.StatusInternalServerError, "internal_error", "internal error")
)

func abortWithError(c *gin.Context, err apiError) {
	c.AbortWithStatusJSON(err.Status, gin.H{"error": err})
}
