package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ritaorion/district5b-portal/internal/usecase"
)

// StoryHandler accepts public story submissions.
type StoryHandler struct {
	moderation *usecase.ModerationService
}

// NewStoryHandler constructs StoryHandler.
func NewStoryHandler(moderation *usecase.ModerationService) *StoryHandler {
	return &StoryHandler{moderation: moderation}
}

// RegisterRoutes binds the public story routes, applying optional middleware ahead of handlers.
func (h *StoryHandler) RegisterRoutes(r *gin.RouterGroup, submitMiddlewares ...gin.HandlerFunc) {
	chain := append(append([]gin.HandlerFunc{}, submitMiddlewares...), h.submit)
	r.POST("/stories", chain...)
}

func (h *StoryHandler) submit(c *gin.Context) {
	var req SubmitStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid story payload"))
		return
	}

	result, err := h.moderation.Submit(c.Request.Context(), usecase.SubmitInput{
		Title:        req.Title,
		Body:         req.Body,
		ContactEmail: req.ContactEmail,
		Author:       req.Author,
		Anonymous:    req.Anonymous,
	})
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to submit story")
		return
	}

	c.JSON(http.StatusCreated, SubmitStoryResponse{
		ID:        result.Submission.ID,
		Status:    string(result.Submission.Status),
		CreatedAt: result.Submission.CreatedAt,
		Message:   "thank you, your story was received and will be reviewed",
	})
}
