package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// handlerが握りつぶした内部エラーの文言（レスポンスには出さない）
const CtxErrorCauseKey = "error_cause"

// RequestLogger は1リクエスト1行の構造化ログを出す
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				//echoのエラーハンドラでステータスを確定させる
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", c.Path()),
				zap.String("uri", req.RequestURI),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
			}
			if id, ok := IdentityFrom(c); ok {
				fields = append(fields, zap.Int64("user_id", id.UserID))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			if cause, ok := c.Get(CtxErrorCauseKey).(string); ok {
				fields = append(fields, zap.String("cause", cause))
			}

			level := zapcore.InfoLevel
			switch {
			case res.Status >= 500:
				level = zapcore.ErrorLevel
			case res.Status >= 400:
				level = zapcore.WarnLevel
			}
			log.Check(level, "request").Write(fields...)
			return nil
		}
	}
}
