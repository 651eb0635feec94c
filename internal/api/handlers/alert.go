package handlers

import (
	"net/http"
	"strconv"

	"emergency-backend/internal/repository"
	"emergency-backend/internal/services"
	"emergency-backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type AlertHandler struct {
	coordinator *services.Coordinator
	validator   *validator.Validate
}

func NewAlertHandler(coordinator *services.Coordinator) *AlertHandler {
	return &AlertHandler{
		coordinator: coordinator,
		validator:   validator.New(),
	}
}

// CreateAlert raises a new emergency alert at the caller's reported
// location and fans it out to nearby users.
func (h *AlertHandler) CreateAlert(c *gin.Context) {
	var req services.CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	alert, err := h.coordinator.Create(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		serviceErrorResponse(c, "Failed to create alert", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Alert created and nearby users notified", alert)
}

// AcceptAlert claims a pending alert for the calling responder. Exactly one
// of any concurrent acceptors wins.
func (h *AlertHandler) AcceptAlert(c *gin.Context) {
	alertID := c.Param("id")
	if alertID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Alert ID is required", nil)
		return
	}

	alert, err := h.coordinator.Accept(c.Request.Context(), alertID, c.GetString("user_id"))
	if err != nil {
		serviceErrorResponse(c, "Failed to accept alert", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Alert accepted", alert)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=resolved cancelled"`
}

// UpdateAlertStatus moves an alert along its lifecycle (resolve or cancel).
func (h *AlertHandler) UpdateAlertStatus(c *gin.Context) {
	alertID := c.Param("id")
	if alertID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Alert ID is required", nil)
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	alert, err := h.coordinator.UpdateStatus(c.Request.Context(), alertID, c.GetString("user_id"), req.Status)
	if err != nil {
		serviceErrorResponse(c, "Failed to update alert status", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Alert status updated", alert)
}

// GetAlert retrieves a single alert, subject to the coordinator's
// visibility rules.
func (h *AlertHandler) GetAlert(c *gin.Context) {
	alertID := c.Param("id")
	if alertID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Alert ID is required", nil)
		return
	}

	alert, err := h.coordinator.Get(c.Request.Context(), alertID, c.GetString("user_id"))
	if err != nil {
		serviceErrorResponse(c, "Failed to retrieve alert", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Alert retrieved", alert)
}

// GetNearbyAlerts lists open alerts around the caller's current location.
func (h *AlertHandler) GetNearbyAlerts(c *gin.Context) {
	radius, _ := strconv.ParseFloat(c.Query("radius"), 64)

	alerts, err := h.coordinator.ListNearby(c.Request.Context(), c.GetString("user_id"), radius)
	if err != nil {
		serviceErrorResponse(c, "Failed to retrieve nearby alerts", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Nearby alerts retrieved", alerts)
}

// GetMyAlerts lists the caller's alert history, sent or responded.
func (h *AlertHandler) GetMyAlerts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	filter := repository.UserAlertFilter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Page:     page,
		Limit:    limit,
	}

	alerts, total, err := h.coordinator.ListForUser(c.Request.Context(), c.GetString("user_id"), filter)
	if err != nil {
		serviceErrorResponse(c, "Failed to retrieve alerts", err)
		return
	}

	if limit < 1 {
		limit = 20
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	utils.PaginatedResponse(c, http.StatusOK, "Alerts retrieved", alerts, utils.Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	})
}

// GetAlertRoute hands the accepted responder the destination and sender
// contact details.
func (h *AlertHandler) GetAlertRoute(c *gin.Context) {
	alertID := c.Param("id")
	if alertID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Alert ID is required", nil)
		return
	}

	route, err := h.coordinator.GetRoute(c.Request.Context(), alertID, c.GetString("user_id"))
	if err != nil {
		serviceErrorResponse(c, "Failed to retrieve route data", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Route data retrieved", route)
}
