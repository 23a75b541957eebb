package handler

import "github.com/labstack/echo/v4"

// /admin 配下は全部「JWT必須 + token_version一致 + ADMIN限定」
func AdminGroup(e *echo.Echo, g Guards) *echo.Group {
	return e.Group("/admin", g.Auth, g.Version, g.Admin)
}
