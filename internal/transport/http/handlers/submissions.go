package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/usecase"
)

var moderationErrorCases = []ErrorCase{
	{Err: usecase.ErrSubmissionNotFound, Status: http.StatusNotFound, Message: "submission not found"},
	{Err: usecase.ErrInvalidState, Status: http.StatusConflict, Message: msgAlreadyProcessed},
}

// SubmissionHandler exposes staff moderation endpoints.
type SubmissionHandler struct {
	moderation *usecase.ModerationService
}

// NewSubmissionHandler constructs SubmissionHandler.
func NewSubmissionHandler(moderation *usecase.ModerationService) *SubmissionHandler {
	return &SubmissionHandler{moderation: moderation}
}

// RegisterRoutes binds moderation routes. Callers attach the staff middleware to the group.
func (h *SubmissionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.GET("/:id", h.get)
	r.POST("/:id/approve", h.approve)
	r.POST("/:id/reject", h.reject)
	r.POST("/:id/article", h.convert)
	r.DELETE("/:id", h.delete)
}

func (h *SubmissionHandler) list(c *gin.Context) {
	filter := port.SubmissionFilter{}
	if raw := c.Query("status"); raw != "" {
		status := domain.SubmissionStatus(raw)
		filter.Status = &status
	}

	var ok bool
	if filter.Limit, ok = queryInt(c, "limit"); !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "limit must be an integer"))
		return
	}
	if filter.Offset, ok = queryInt(c, "offset"); !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "offset must be an integer"))
		return
	}

	items, err := h.moderation.List(c.Request.Context(), filter)
	if err != nil {
		RespondWithMappedError(c, err, moderationErrorCases, http.StatusInternalServerError, "failed to list submissions")
		return
	}

	resp := SubmissionListResponse{Items: make([]SubmissionResponse, 0, len(items)), Count: len(items), Offset: filter.Offset}
	for _, item := range items {
		resp.Items = append(resp.Items, newSubmissionResponse(item))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SubmissionHandler) get(c *gin.Context) {
	sub, err := h.moderation.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, moderationErrorCases, http.StatusInternalServerError, "failed to load submission")
		return
	}
	c.JSON(http.StatusOK, newSubmissionResponse(*sub))
}

func (h *SubmissionHandler) approve(c *gin.Context) {
	result, err := h.moderation.Approve(c.Request.Context(), c.Param("id"))
	h.respondDecision(c, result, err)
}

func (h *SubmissionHandler) reject(c *gin.Context) {
	result, err := h.moderation.Reject(c.Request.Context(), c.Param("id"))
	h.respondDecision(c, result, err)
}

func (h *SubmissionHandler) respondDecision(c *gin.Context, result *usecase.ModerationResult, err error) {
	if err != nil {
		RespondWithMappedError(c, err, moderationErrorCases, http.StatusInternalServerError, "failed to update submission")
		return
	}
	c.JSON(http.StatusOK, ModerationResponse{
		Submission:   newSubmissionResponse(result.Submission),
		Notification: newDeliveryResponse(result.Notification),
	})
}

func (h *SubmissionHandler) convert(c *gin.Context) {
	result, err := h.moderation.ConvertToArticle(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, moderationErrorCases, http.StatusInternalServerError, "failed to create article draft")
		return
	}
	c.JSON(http.StatusCreated, ArticleResponse{DraftID: result.DraftID, SubmissionID: result.SubmissionID})
}

func (h *SubmissionHandler) delete(c *gin.Context) {
	if err := h.moderation.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, moderationErrorCases, http.StatusInternalServerError, "failed to delete submission")
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
