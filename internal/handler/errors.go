package handler

import (
	"errors"
	"net/http"

	"github.com/aman-churiwal/tenantgate/internal/feature"
	"github.com/aman-churiwal/tenantgate/internal/service"
	"github.com/gin-gonic/gin"
)

// respondError maps service errors to HTTP statuses. Unknown errors are 500s.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, feature.ErrFlagNotFound),
		errors.Is(err, service.ErrTenantNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrFlagExists),
		errors.Is(err, service.ErrUserExists),
		errors.Is(err, service.ErrTenantHasUsers):
		status = http.StatusConflict
	case errors.Is(err, feature.ErrScopeMismatch),
		errors.Is(err, service.ErrWrongFlagType),
		errors.Is(err, service.ErrInvalidFlagType),
		errors.Is(err, service.ErrInvalidFlagKey),
		errors.Is(err, service.ErrInvalidDateRange),
		errors.Is(err, service.ErrInvalidVariants),
		errors.Is(err, service.ErrInvalidPlan),
		errors.Is(err, service.ErrInvalidLimit):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
