package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIError is the body of every error response.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, APIError{Error: message, Code: "BAD_REQUEST"})
}

func respondUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Error: "missing or invalid bearer token", Code: "UNAUTHORIZED"})
}

func respondUnprocessable(c *gin.Context, message string, err error) {
	c.JSON(http.StatusUnprocessableEntity, APIError{Error: message, Code: "INVALID_POLICY", Details: err.Error()})
}

func respondUnavailable(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, APIError{Error: message, Code: "UNAVAILABLE"})
}

// respondInternalError logs the full error and returns a sanitized message.
func respondInternalError(c *gin.Context, operation string, err error, log *zap.Logger) {
	log.Error(fmt.Sprintf("failed to %s", operation), zap.Error(err))
	c.JSON(http.StatusInternalServerError, APIError{
		Error: fmt.Sprintf("failed to %s", operation),
		Code:  "INTERNAL_ERROR",
	})
}
