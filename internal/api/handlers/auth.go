package handlers

import (
	"net/http"

	"emergency-backend/internal/services"
	"emergency-backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type AuthHandler struct {
	authService *services.AuthService
	validator   *validator.Validate
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validator:   validator.New(),
	}
}

// Register creates a directory entry with the user's location and returns
// a session token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		serviceErrorResponse(c, "Failed to register", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Registered successfully", resp)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		// Credential failures come back as authorization errors; login
		// reports them as 401 rather than 403.
		if services.KindOf(err) == services.KindAuthorization {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid credentials", nil)
			return
		}
		serviceErrorResponse(c, "Failed to log in", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Logged in successfully", resp)
}

func (h *AuthHandler) GetProfile(c *gin.Context) {
	user, err := h.authService.GetProfile(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		serviceErrorResponse(c, "Failed to retrieve profile", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Profile retrieved", user)
}

// UpdateLocation moves the caller's directory location.
func (h *AuthHandler) UpdateLocation(c *gin.Context) {
	var req services.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	user, err := h.authService.UpdateLocation(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		serviceErrorResponse(c, "Failed to update location", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Location updated", user)
}
