package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bdougie/toxiclens/internal/models"
)

// ErrorBody is the body of every error response.
type ErrorBody struct {
	Error     *models.ErrorInfo `json:"error"`
	RequestID string            `json:"request_id,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorBody{
		Error:     &models.ErrorInfo{Code: code, Message: message},
		RequestID: c.GetString("request_id"),
	})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind models.Kind) int {
	switch kind {
	case models.KindParse, models.KindEmptyInput:
		return http.StatusBadRequest
	case models.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err with the status of its kind. Server faults keep
// their detail out of the response.
func handleError(c *gin.Context, err error) {
	_ = c.Error(err)

	kind := models.KindOf(err)
	info := models.NewErrorInfo(err)
	status := statusFor(kind)

	message := info.Message
	switch kind {
	case models.KindInference:
		message = "model inference failed"
	case models.KindUnknown:
		message = "internal server error"
	}
	respondError(c, status, info.Code, message)
}
