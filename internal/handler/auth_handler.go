package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

const (
	refreshCookieName = "refresh"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
)

type AuthHandler struct {
	uc           *usecase.AuthUsecase
	refreshTTL   time.Duration // refresh/csrf cookie の有効期限
	cookieSecure bool
}

// DIコンストラクタ
func NewAuthHandler(uc *usecase.AuthUsecase, refreshTTL time.Duration, cookieSecure bool) *AuthHandler {
	return &AuthHandler{uc: uc, refreshTTL: refreshTTL, cookieSecure: cookieSecure}
}

func (h *AuthHandler) RegisterRoutes(e *echo.Echo, g Guards) {
	a := e.Group("/auth")
	a.POST("/register", h.register)
	a.POST("/login", h.login)
	a.POST("/refresh", h.refresh)
	a.POST("/logout", h.logout)

	e.GET("/me", h.me, g.Auth, g.Version)
}

// POST /auth/register
func (h *AuthHandler) register(c echo.Context) error {
	var req usecase.AuthRegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.Register(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// POST /auth/login
func (h *AuthHandler) login(c echo.Context) error {
	var req usecase.AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	// User-Agentはrefreshtokenに紐付ける
	res, err := h.uc.Login(c.Request().Context(), req, c.Request().UserAgent())
	if err != nil {
		return writeError(c, err)
	}

	h.setCookies(c, res.RefreshTokenPlain, res.CsrfTokenPlain)
	return c.JSON(http.StatusOK, res.Body)
}

// POST /auth/refresh
// cookieのcsrf_tokenとX-CSRF-Tokenヘッダが一致したときだけ回転させる
func (h *AuthHandler) refresh(c echo.Context) error {
	if !csrfMatches(c) {
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "csrf token mismatch", Code: string(usecase.KindUnauthorized)})
	}

	rc, err := c.Cookie(refreshCookieName)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: string(usecase.KindUnauthenticated)})
	}

	res, err := h.uc.Refresh(c.Request().Context(), rc.Value, c.Request().UserAgent())
	if err != nil {
		//使えないrefreshは消しておく
		h.clearCookies(c)
		return writeError(c, err)
	}

	h.setCookies(c, res.RefreshTokenPlain, res.CsrfTokenPlain)
	return c.JSON(http.StatusOK, res.Body)
}

// POST /auth/logout
func (h *AuthHandler) logout(c echo.Context) error {
	if !csrfMatches(c) {
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "csrf token mismatch", Code: string(usecase.KindUnauthorized)})
	}

	rc, err := c.Cookie(refreshCookieName)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: string(usecase.KindUnauthenticated)})
	}
	if err := h.uc.Logout(c.Request().Context(), rc.Value); err != nil {
		return writeError(c, err)
	}

	h.clearCookies(c)
	return c.JSON(http.StatusOK, SuccessResponse{Message: "logged out"})
}

// GET /me
func (h *AuthHandler) me(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: string(usecase.KindUnauthenticated)})
	}

	out, err := h.uc.Me(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) setCookies(c echo.Context, refresh, csrf string) {
	exp := time.Now().Add(h.refreshTTL)

	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    refresh,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
	//csrfはJSから読む
	c.SetCookie(&http.Cookie{
		Name:     csrfCookieName,
		Value:    csrf,
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
}

func (h *AuthHandler) clearCookies(c echo.Context) {
	for _, name := range []string{refreshCookieName, csrfCookieName} {
		c.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: name == refreshCookieName,
			Secure:   h.cookieSecure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}

func csrfMatches(c echo.Context) bool {
	ck, err := c.Cookie(csrfCookieName)
	if err != nil || ck.Value == "" {
		return false
	}
	header := c.Request().Header.Get(csrfHeaderName)
	return subtle.ConstantTimeCompare([]byte(ck.Value), []byte(header)) == 1
}
