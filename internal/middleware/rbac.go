package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gurukul-lms/gurukul-api/internal/models"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
	"github.com/gurukul-lms/gurukul-api/pkg/response"
)

// RequireRoles admits callers whose token role is one of roles. It must run
// after JWT. Instructors never reach student or admin routes unless listed.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]bool, len(roles))
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		allowed[r] = true
		names = append(names, string(r))
	}
	denied := appErrors.WithDetails(appErrors.ErrForbidden, map[string]interface{}{
		"requiredRoles": strings.Join(names, ","),
	})

	return func(c *gin.Context) {
		claims, ok := Claims(c)
		switch {
		case !ok:
			response.Error(c, appErrors.ErrUnauthorized)
		case !allowed[claims.Role]:
			response.Error(c, denied)
		default:
			c.Next()
		}
	}
}
