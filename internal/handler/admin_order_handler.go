package handler

import (
	"net/http"
	"strconv"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminOrderHandler struct {
	orders *usecase.AdminOrderUsecase
	audits *usecase.AuditLogUsecase
}

func NewAdminOrderHandler(orders *usecase.AdminOrderUsecase, audits *usecase.AuditLogUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{orders: orders, audits: audits}
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminOrderHandler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/orders", h.list)
	admin.PATCH("/orders/:id/status", h.updateStatus)
	admin.GET("/audit-logs", h.auditLogs)
}

// GET /admin/orders?page=&limit=&status=&user_id=&from=&to=
func (h *AdminOrderHandler) list(c echo.Context) error {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return badRequest(c, "invalid page")
	}
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return badRequest(c, "invalid limit")
	}

	f := repository.AdminOrderListFilter{
		Page:   page,
		Limit:  limit,
		Status: c.QueryParam("status"),
	}
	if v := c.QueryParam("user_id"); v != "" {
		uid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid user_id")
		}
		f.UserID = &uid
	}
	var err error
	if f.From, err = queryTime(c, "from"); err != nil {
		return badRequest(c, "invalid from")
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		return badRequest(c, "invalid to")
	}

	out, err := h.orders.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) updateStatus(c echo.Context) error {
	var req updateOrderStatusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	actor, _ := middleware.IdentityFrom(c)
	err := h.orders.UpdateStatus(c.Request().Context(), actor, c.Param("id"), usecase.AdminUpdateOrderStatusInput{
		Status: req.Status,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "status updated"})
}

// GET /admin/audit-logs
func (h *AdminOrderHandler) auditLogs(c echo.Context) error {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return badRequest(c, "invalid limit")
	}
	cursor, ok := queryInt(c, "cursor", 0)
	if !ok {
		return badRequest(c, "invalid cursor")
	}

	f := repository.AuditLogFilter{Limit: limit, BeforeID: int64(cursor)}
	if v := c.QueryParam("actor_user_id"); v != "" {
		uid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid actor_user_id")
		}
		f.ActorUserID = &uid
	}
	if v := c.QueryParam("action"); v != "" {
		a := model.AuditAction(v)
		f.Action = &a
	}
	if v := c.QueryParam("resource_type"); v != "" {
		rt := model.AuditResourceType(v)
		f.ResourceType = &rt
	}
	if v := c.QueryParam("resource_id"); v != "" {
		f.ResourceID = &v
	}
	var err error
	if f.From, err = queryTime(c, "from"); err != nil {
		return badRequest(c, "invalid from")
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		return badRequest(c, "invalid to")
	}

	page, err := h.audits.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// RFC3339 or YYYY-MM-DD
func queryTime(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
