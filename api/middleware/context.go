package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/domails/internal/utils"
)

// CustomContextMiddleware adds tenant, user and app source to the request context
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
