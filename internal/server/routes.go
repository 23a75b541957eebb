package server

import (
	"net/http"

	"storefront/internal/handler"

	"github.com/labstack/echo/v4"
)

// Handlers はmainで組み立てたハンドラ一式
type Handlers struct {
	Auth         *handler.AuthHandler
	Product      *handler.ProductHandler
	Address      *handler.AddressHandler
	Cart         *handler.CartHandler
	Order        *handler.OrderHandler
	Webhook      *handler.WebhookHandler
	AdminProduct *handler.AdminProductHandler
	AdminOrder   *handler.AdminOrderHandler
	AdminUser    *handler.AdminUserHandler
}

func RegisterRoutes(e *echo.Echo, h Handlers, g handler.Guards) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Auth.RegisterRoutes(e, g)
	h.Product.RegisterRoutes(e)
	h.Address.RegisterRoutes(e, g)
	h.Cart.RegisterRoutes(e, g)
	h.Order.RegisterRoutes(e, g)
	h.Webhook.RegisterRoutes(e)

	admin := handler.AdminGroup(e, g)
	h.AdminProduct.RegisterRoutes(admin)
	h.AdminOrder.RegisterRoutes(admin)
	h.AdminUser.RegisterRoutes(admin)
}
