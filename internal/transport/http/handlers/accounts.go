package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ritaorion/district5b-portal/internal/usecase"
)

var accountErrorCases = []ErrorCase{
	{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
	{Err: usecase.ErrConflict, Status: http.StatusConflict, Message: "username or email already in use"},
	{Err: usecase.ErrAlreadyActivated, Status: http.StatusConflict, Message: "account already activated"},
	{Err: usecase.ErrConcurrentUpdate, Status: http.StatusConflict, Message: "account was updated by another request; try again"},
}

// AccountHandler exposes staff provisioning endpoints.
type AccountHandler struct {
	provisioning *usecase.ProvisioningService
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(provisioning *usecase.ProvisioningService) *AccountHandler {
	return &AccountHandler{provisioning: provisioning}
}

// RegisterAdminRoutes binds admin-only account routes.
func (h *AccountHandler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("", h.create)
	r.GET("/:id", h.get)
	r.POST("/:id/resend", h.resend)
}

// RegisterSetupRoutes binds the public setup-link redemption route.
func (h *AccountHandler) RegisterSetupRoutes(r *gin.RouterGroup, setupMiddlewares ...gin.HandlerFunc) {
	chain := append(append([]gin.HandlerFunc{}, setupMiddlewares...), h.setup)
	r.POST("/setup", chain...)
}

func (h *AccountHandler) create(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid account payload"))
		return
	}

	result, err := h.provisioning.CreateAccount(c.Request.Context(), usecase.CreateAccountInput{
		Username:    req.Username,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DisplayName: req.DisplayName,
		IsAdmin:     req.IsAdmin,
	})
	if err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to create account")
		return
	}
	c.JSON(http.StatusCreated, newProvisioningResponse(result))
}

func (h *AccountHandler) get(c *gin.Context) {
	view, err := h.provisioning.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to load account")
		return
	}
	c.JSON(http.StatusOK, newAccountResponse(view.Account, view.State, view.TokenExpiresAt))
}

func (h *AccountHandler) resend(c *gin.Context) {
	result, err := h.provisioning.ResendProvisioningLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to resend setup link")
		return
	}
	c.JSON(http.StatusOK, newProvisioningResponse(result))
}

func (h *AccountHandler) setup(c *gin.Context) {
	var req AccountSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid setup payload"))
		return
	}

	if _, err := h.provisioning.ConsumeToken(c.Request.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, usecase.ErrInvalidToken) {
			respondInvalidLink(c)
			return
		}
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to complete account setup")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "your password is set; you can now sign in"})
}
