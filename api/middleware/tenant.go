package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/domails/internal/utils"
)

// TenantValidationMiddleware rejects requests without a tenant. It must run
// after CustomContextMiddleware.
func TenantValidationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := utils.ValidateTenant(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant header is required"})
			return
		}
		c.Next()
	}
}
