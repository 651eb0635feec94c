package handlers

import (
	"net/http"

	"emergency-backend/internal/services"
	"emergency-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// serviceErrorResponse maps coordinator error kinds to HTTP statuses.
// Invalid-state covers the lost accept race, so it maps to conflict.
func serviceErrorResponse(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch services.KindOf(err) {
	case services.KindValidation:
		status = http.StatusBadRequest
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindAuthorization:
		status = http.StatusForbidden
	case services.KindInvalidState:
		status = http.StatusConflict
	case services.KindDependency:
		status = http.StatusBadGateway
	}
	utils.ErrorResponse(c, status, message, err)
}
