package handler

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AddressHandler struct {
	uc *usecase.AddressUsecase
}

func NewAddressHandler(uc *usecase.AddressUsecase) *AddressHandler {
	return &AddressHandler{uc: uc}
}

// 住所はログイン必須
func (h *AddressHandler) RegisterRoutes(e *echo.Echo, g Guards) {
	a := e.Group("/addresses", g.Auth, g.Version)
	a.GET("", h.list)
	a.POST("", h.create)
	a.PUT("/:id", h.update)
	a.DELETE("/:id", h.delete)
	a.POST("/:id/default", h.setDefault)
}

func (h *AddressHandler) list(c echo.Context) error {
	id, _ := middleware.IdentityFrom(c)
	out, err := h.uc.List(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AddressHandler) create(c echo.Context) error {
	var req usecase.AddressInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	id, _ := middleware.IdentityFrom(c)
	out, err := h.uc.Create(c.Request().Context(), id, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AddressHandler) update(c echo.Context) error {
	addressID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req usecase.AddressInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	id, _ := middleware.IdentityFrom(c)
	if err := h.uc.Update(c.Request().Context(), id, addressID, req); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "updated"})
}

func (h *AddressHandler) delete(c echo.Context) error {
	addressID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	id, _ := middleware.IdentityFrom(c)
	if err := h.uc.Delete(c.Request().Context(), id, addressID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

func (h *AddressHandler) setDefault(c echo.Context) error {
	addressID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	id, _ := middleware.IdentityFrom(c)
	if err := h.uc.SetDefault(c.Request().Context(), id, addressID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "default updated"})
}
