package middleware

import (
	"net/http"
	"slices"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// RequireRole はAuthJWTの後ろに置く。未ログインは401、ロール違いは403
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return unauthorized(c)
			}
			if !slices.Contains(roles, id.Role) {
				return c.JSON(http.StatusForbidden, errorJSON(forbiddenMessage(roles), usecase.KindUnauthorized))
			}
			return next(c)
		}
	}
}

func AdminRoleGuard() echo.MiddlewareFunc {
	return RequireRole(model.RoleAdmin)
}

func forbiddenMessage(roles []model.Role) string {
	if len(roles) == 1 && roles[0] == model.RoleAdmin {
		return "admin only"
	}
	return "forbidden"
}
