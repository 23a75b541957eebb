package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const headerIdempotencyKey = "X-Idempotency-Key"

type OrderHandler struct {
	orders   *usecase.OrderUsecase
	checkout *usecase.CheckoutUsecase
}

func NewOrderHandler(orders *usecase.OrderUsecase, checkout *usecase.CheckoutUsecase) *OrderHandler {
	return &OrderHandler{orders: orders, checkout: checkout}
}

// POST /orders のボディ。
// itemsが空ならカートから作る。totalは送られてきても計算には使わない。
type createOrderRequest struct {
	Items     []usecase.LineInput    `json:"items"`
	AddressID int64                  `json:"address_id"`
	Shipping  *model.ShippingAddress `json:"shipping"`
	Customer  usecase.CustomerInput  `json:"customer"`
	Total     *decimal.Decimal       `json:"total"`
}

type quoteRequest struct {
	Items []usecase.LineInput `json:"items"`
}

type payRequest struct {
	Provider string `json:"provider"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, g Guards) {
	// ポーリング用。IDを知っていれば誰でも読める
	e.GET("/orders/:id/status", h.status)
	e.POST("/orders/quote", h.quote)

	e.GET("/orders", h.listMine, g.Auth, g.Version)

	o := e.Group("/orders", g.Optional, g.Version)
	o.POST("", h.create)
	o.GET("/:id", h.detail)
	o.GET("/:id/receipt", h.receipt)
	o.POST("/:id/pay", h.pay)
}

func (h *OrderHandler) create(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.orders.CreateOrder(c.Request().Context(), middleware.OwnerFrom(c), usecase.CreateOrderInput{
		Items:          req.Items,
		AddressID:      req.AddressID,
		Shipping:       req.Shipping,
		Customer:       req.Customer,
		ClientTotal:    req.Total,
		IdempotencyKey: c.Request().Header.Get(headerIdempotencyKey),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) quote(c echo.Context) error {
	var req quoteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.orders.Quote(c.Request().Context(), req.Items)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) listMine(c echo.Context) error {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return badRequest(c, "invalid page")
	}
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return badRequest(c, "invalid limit")
	}

	id, _ := middleware.IdentityFrom(c)
	out, err := h.orders.ListMyOrders(c.Request().Context(), id, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	out, err := h.orders.GetOrderDetail(c.Request().Context(), middleware.OwnerFrom(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) status(c echo.Context) error {
	out, err := h.orders.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	//ポーリングの結果をキャッシュさせない
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) receipt(c echo.Context) error {
	pdf, filename, err := h.orders.Receipt(c.Request().Context(), middleware.OwnerFrom(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+strconv.Quote(filename))
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

// POST /orders/:id/pay
func (h *OrderHandler) pay(c echo.Context) error {
	var req payRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.checkout.InitializePayment(c.Request().Context(), middleware.OwnerFrom(c), c.Param("id"), req.Provider)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
