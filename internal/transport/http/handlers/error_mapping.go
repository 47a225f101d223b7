package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ritaorion/district5b-portal/internal/usecase"
)

const (
	msgAlreadyProcessed = "this item was already processed"
	msgInvalidLink      = "this link is no longer valid"
	msgUnavailable      = "service temporarily unavailable"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// commonCases apply to every handler after its own cases.
var commonCases = []ErrorCase{
	{Err: usecase.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: msgUnavailable},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
// Validation errors always produce 400 with per-field messages.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var verr *usecase.ValidationError
	if errors.As(err, &verr) {
		resp := NewErrorResponse(c, "invalid input")
		resp.Fields = verr.Fields
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	for _, group := range [][]ErrorCase{cases, commonCases} {
		for _, cs := range group {
			if cs.Err == nil {
				continue
			}
			if errors.Is(err, cs.Err) {
				c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
				return
			}
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

func respondInvalidLink(c *gin.Context) {
	c.JSON(http.StatusBadRequest, InvalidLinkResponse{
		Error:         msgInvalidLink,
		CanRequestNew: true,
		TraceID:       c.GetString("trace_id"),
	})
}
