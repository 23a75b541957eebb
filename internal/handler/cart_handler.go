package handler

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type CartHandler struct {
	uc *usecase.CartUsecase
}

func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type addCartRequest struct {
	ProductID     int64  `json:"product_id"`
	Quantity      int64  `json:"quantity"`
	SelectedSize  string `json:"selected_size"`
	SelectedColor string `json:"selected_color"`
}

type updateCartItemRequest struct {
	Quantity int64 `json:"quantity"`
}

type syncCartRequest struct {
	Mode  string              `json:"mode"`
	Items []usecase.LineInput `json:"items"`
}

// /cart はログインユーザーとゲスト（X-Guest-ID）の両方
func (h *CartHandler) RegisterRoutes(e *echo.Echo, g Guards) {
	cart := e.Group("/cart", g.Optional, g.Version)
	cart.GET("", h.get)
	cart.POST("/items", h.add)
	cart.PATCH("/items/:id", h.update)
	cart.DELETE("/items/:id", h.delete)
	cart.POST("/sync", h.sync)
	//ログイン直後にフロントが X-Guest-ID を付けて呼ぶ
	cart.POST("/claim", h.claim)
}

func (h *CartHandler) get(c echo.Context) error {
	out, err := h.uc.GetCart(c.Request().Context(), middleware.OwnerFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) add(c echo.Context) error {
	var req addCartRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.AddToCart(c.Request().Context(), middleware.OwnerFrom(c), usecase.AddCartInput{
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		SelectedSize:  req.SelectedSize,
		SelectedColor: req.SelectedColor,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) update(c echo.Context) error {
	itemID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req updateCartItemRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.UpdateCartItem(c.Request().Context(), middleware.OwnerFrom(c), itemID, usecase.UpdateCartItemInput{
		Quantity: req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) delete(c echo.Context) error {
	itemID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.DeleteCartItem(c.Request().Context(), middleware.OwnerFrom(c), itemID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) sync(c echo.Context) error {
	var req syncCartRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.SyncCart(c.Request().Context(), middleware.OwnerFrom(c), usecase.SyncCartInput{
		Mode:  usecase.SyncMode(req.Mode),
		Items: req.Items,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) claim(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: string(usecase.KindUnauthenticated)})
	}

	out, err := h.uc.ClaimGuestCart(c.Request().Context(), id, middleware.GuestIDFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
