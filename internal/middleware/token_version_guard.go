package middleware

import (
	"context"
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// TokenVersionGuardが必要とするのはIDでの取得だけ
type UserFinder interface {
	FindByID(ctx context.Context, userID int64) (*model.User, error)
}

// TokenVersionGuard はJWTのtvとDBのtoken_versionを突き合わせる。
// 強制ログアウトでversionが上がると、それ以前のトークンは401になる。
// トークンなし（ゲスト）はそのまま通す。
func TokenVersionGuard(users UserFinder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return next(c)
			}

			tv, ok := c.Get(CtxTokenVersionKey).(int)
			if !ok || tv < 0 {
				return unauthorized(c)
			}

			user, err := users.FindByID(c.Request().Context(), id.UserID)
			switch {
			case err != nil || user == nil:
				return unauthorized(c)
			case user.TokenVersion != tv:
				return unauthorized(c)
			case !user.IsActive:
				return c.JSON(http.StatusForbidden, errorJSON("user disabled", usecase.KindUnauthorized))
			}
			return next(c)
		}
	}
}
