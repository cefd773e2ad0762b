package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
	qstashx "github.com/tanpawarit/account-opening-agents/pkg/qstash"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

func Ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error rejects a request before any work was done.
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Detail: message})
}

// Fail reports a failed operation with the {"error": "<op> failed with error: ..."} body.
func Fail(c *gin.Context, op string, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), contractx.FailurePayload(op, err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, contractx.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, contractx.ErrValidation),
		errors.Is(err, contractx.ErrArgumentParse),
		errors.Is(err, prospectx.ErrEmptyClientID),
		errors.Is(err, prospectx.ErrClientIDChange):
		return http.StatusBadRequest
	case errors.Is(err, prospectx.ErrRecordExists):
		return http.StatusConflict
	case errors.Is(err, qstashx.ErrDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
