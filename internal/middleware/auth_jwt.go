package middleware

import (
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	CtxIdentityKey     = "identity"      // model.Identity
	CtxTokenVersionKey = "token_version" // int
	CtxGuestIDKey      = "guest_id"      // string

	HeaderGuestID = "X-Guest-ID"
)

// bearerAuth用のJWT検証ミドルウェア。トークン必須。
func AuthJWT(tokens *usecase.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c)
			if !ok {
				return unauthorized(c)
			}
			if !setIdentity(c, tokens, raw) {
				return unauthorized(c)
			}
			return next(c)
		}
	}
}

// OptionalAuth はゲストにも開いているルート用。
// Bearerがあれば検証し、無ければ X-Guest-ID を持ち主として使う。
func OptionalAuth(tokens *usecase.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//壊れたトークンはゲスト扱いにせず401
			if raw, ok := bearerToken(c); ok {
				if !setIdentity(c, tokens, raw) {
					return unauthorized(c)
				}
			} else if c.Request().Header.Get("Authorization") != "" {
				return unauthorized(c)
			}

			if gid := strings.TrimSpace(c.Request().Header.Get(HeaderGuestID)); gid != "" {
				if _, err := uuid.Parse(gid); err != nil {
					return c.JSON(http.StatusBadRequest, errorJSON("invalid guest id", usecase.KindValidation))
				}
				c.Set(CtxGuestIDKey, strings.ToLower(gid))
			}
			return next(c)
		}
	}
}

// IdentityFrom はAuthJWT/OptionalAuthが入れた呼び出し元を返す
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(CtxIdentityKey).(model.Identity)
	if !ok || id.UserID <= 0 {
		return model.Identity{}, false
	}
	return id, true
}

// GuestIDFrom は検証済みの X-Guest-ID
func GuestIDFrom(c echo.Context) string {
	gid, _ := c.Get(CtxGuestIDKey).(string)
	return gid
}

// OwnerFrom はログインユーザー優先で持ち主を決める
func OwnerFrom(c echo.Context) model.Owner {
	if id, ok := IdentityFrom(c); ok {
		return model.Owner{UserID: id.UserID}
	}
	return model.Owner{GuestID: GuestIDFrom(c)}
}

// Authorizationヘッダから Bearer トークンを抜く
func bearerToken(c echo.Context) (string, bool) {
	authz := c.Request().Header.Get("Authorization")
	if authz == "" {
		return "", false
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", false
	}
	return raw, true
}

func setIdentity(c echo.Context, tokens *usecase.TokenService, raw string) bool {
	id, tv, err := tokens.Parse(raw)
	if err != nil {
		return false
	}
	//contextへ保存
	c.Set(CtxIdentityKey, id)
	c.Set(CtxTokenVersionKey, tv)
	return true
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func errorJSON(msg string, kind usecase.ErrorKind) errorResponse {
	return errorResponse{Error: msg, Code: string(kind)}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized", usecase.KindUnauthenticated))
}
