package handler

import (
	"io"
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// プロバイダのイベントはこれより大きくならない
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	uc *usecase.WebhookUsecase
}

func NewWebhookHandler(uc *usecase.WebhookUsecase) *WebhookHandler {
	return &WebhookHandler{uc: uc}
}

type webhookAck struct {
	Received bool `json:"received"`
}

// 署名検証に生のボディが要るのでBindしない
func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/:provider", h.receive)
}

func (h *WebhookHandler) receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	if len(body) > maxWebhookBody {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large", Code: string(usecase.KindValidation)})
	}

	if _, err := h.uc.Handle(c.Request().Context(), c.Param("provider"), c.Request().Header, body); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, webhookAck{Received: true})
}
