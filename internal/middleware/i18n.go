// internal/middleware/i18n.go
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/keyshop-bot/internal/i18n"
)

// I18nMiddleware stores the request language under "lang". Quality values
// are ignored and the first listed language wins.
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := i18n.Default()
		if header := c.GetHeader("Accept-Language"); header != "" {
			lang = i18n.Normalize(header)
		}

		c.Set("lang", lang)
		c.Next()
	}
}
