package handler

import (
	"net/http"

	"github.com/aman-churiwal/tenantgate/internal/circuitbreaker"
	"github.com/gin-gonic/gin"
)

// Handles system-related endpoints
type SystemHandler struct {
	breakers map[string]*circuitbreaker.Breaker
}

func NewSystemHandler(breakers ...*circuitbreaker.Breaker) *SystemHandler {
	byName := make(map[string]*circuitbreaker.Breaker, len(breakers))
	for _, b := range breakers {
		byName[b.Name()] = b
	}
	return &SystemHandler{
		breakers: byName,
	}
}

// Returns the status of all circuit breakers
func (h *SystemHandler) CircuitBreakerStatus(c *gin.Context) {
	statuses := make(map[string]interface{})

	for name, breaker := range h.breakers {
		metrics := breaker.Metrics()

		statuses[name] = gin.H{
			"state":             metrics.State.String(),
			"failure_count":     metrics.FailureCount,
			"last_failure_time": metrics.LastFailureTime,
			"last_state_change": metrics.LastStateChange,
		}
	}

	c.JSON(http.StatusOK, statuses)
}

// Manually resets a circuit breaker
func (h *SystemHandler) ResetCircuitBreaker(c *gin.Context) {
	name := c.Param("name")

	breaker, exists := h.breakers[name]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Circuit breaker not found",
		})
		return
	}

	breaker.Reset()

	c.JSON(http.StatusOK, gin.H{
		"message": "Circuit breaker reset successfully",
		"breaker": name,
	})
}
