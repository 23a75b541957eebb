package handler

import (
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// エラー時のJSON。codeはクライアントが分岐に使う。
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// SuccessResponse は { message: string }
type SuccessResponse struct {
	Message string `json:"message"`
}

// Guards はルート登録時に使うミドルウェア一式。serverで組み立てて渡す。
type Guards struct {
	Auth     echo.MiddlewareFunc // JWT必須
	Optional echo.MiddlewareFunc // JWT or X-Guest-ID
	Version  echo.MiddlewareFunc // token_version一致
	Admin    echo.MiddlewareFunc // ADMINのみ
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: string(usecase.KindValidation)})
}

// writeError はusecaseのエラーをHTTPへ。HTTPError以外は中身を出さない。
func writeError(c echo.Context, err error) error {
	var he *usecase.HTTPError
	if errors.As(err, &he) {
		if he.Retryable() {
			c.Response().Header().Set("Retry-After", "1")
		}
		return c.JSON(he.Status, ErrorResponse{Error: he.Message, Code: string(he.Kind)})
	}
	//RequestLoggerに原因を残す
	c.Set(middleware.CtxErrorCauseKey, err.Error())
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: string(usecase.KindInternal)})
}

func paramID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt は空ならdef
func queryInt(c echo.Context, name string, def int) (int, bool) {
	v := c.QueryParam(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
