package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-auth/internal/middleware"
	"github.com/iliyamo/storefront-auth/internal/model"
	"github.com/iliyamo/storefront-auth/internal/repository"
	"github.com/iliyamo/storefront-auth/internal/service"
)

// AdminHandler exposes account administration.
type AdminHandler struct {
	Svc *service.AdminService
}

func NewAdminHandler(svc *service.AdminService) *AdminHandler {
	return &AdminHandler{Svc: svc}
}

type changeRoleReq struct {
	Role string `json:"role" validate:"required,oneof=user admin super_admin"`
}

type setStatusReq struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

type listResp struct {
	Success bool               `json:"success"`
	Users   []model.PublicUser `json:"users"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

func actor(c echo.Context) (service.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return service.Identity{}, service.ErrUnauthorized("authentication required")
	}
	return id, nil
}

// List: GET /v1/admin/users?role=&limit=&offset=&includeDeleted=
func (h *AdminHandler) List(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	var (
		role string
		f    repository.ListFilter
	)
	if err := echo.QueryParamsBinder(c).
		String("role", &role).
		Int("limit", &f.Limit).
		Int("offset", &f.Offset).
		Bool("includeDeleted", &f.IncludeDeleted).
		BindError(); err != nil {
		return service.ErrBadRequest("invalid query parameters")
	}
	if role != "" {
		r, err := model.ParseRole(role)
		if err != nil {
			return service.ErrValidation("unknown role")
		}
		f.Role = r
	}
	f = f.Normalize()
	ctx, cancel := withTimeout(c)
	defer cancel()

	users, err := h.Svc.ListAccounts(ctx, who, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResp{Success: true, Users: users, Limit: f.Limit, Offset: f.Offset})
}

// GetUser: GET /v1/users/:id, owner or admin.
func (h *AdminHandler) GetUser(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Svc.GetAccount(ctx, who, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResp{Success: true, User: u})
}

// ChangeRole: PATCH /v1/admin/users/:id/role
func (h *AdminHandler) ChangeRole(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	var req changeRoleReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return service.ErrValidation("unknown role")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Svc.ChangeRole(ctx, who, c.Param("id"), role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResp{Success: true, User: u})
}

// SetStatus: PATCH /v1/admin/users/:id/status
func (h *AdminHandler) SetStatus(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	var req setStatusReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Svc.SetActive(ctx, who, c.Param("id"), *req.IsActive)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResp{Success: true, User: u})
}

// Delete: DELETE /v1/admin/users/:id (soft delete)
func (h *AdminHandler) Delete(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Svc.SoftDelete(ctx, who, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{Success: true, Message: "account deleted"})
}
