package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-service/internal/service"
)

// RoleHandler exposes role management. Every route is mounted behind
// JWTAuth and RequireAdmin.
type RoleHandler struct {
	RBAC   *service.RBACService
	Logger *zap.Logger
}

func NewRoleHandler(r *service.RBACService, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{RBAC: r, Logger: orGlobal(logger)}
}

type roleReq struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *RoleHandler) List(c echo.Context) error {
	roles, err := h.RBAC.ListRoles(c.Request().Context())
	if err != nil {
		return fail(c, h.Logger, err)
	}
	out := make([]roleResp, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleResp{ID: r.ID, Name: r.Name, Description: r.Description})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RoleHandler) Create(c echo.Context) error {
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	role, err := h.RBAC.CreateRole(c.Request().Context(), req.Name, req.Description)
	if err != nil {
		return fail(c, h.Logger, err)
	}
	return message(c, http.StatusCreated, fmt.Sprintf("%s role created.", role.Name))
}

// Delete removes the role named in the body along with its memberships.
func (h *RoleHandler) Delete(c echo.Context) error {
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := h.RBAC.DeleteRole(c.Request().Context(), req.Name); err != nil {
		return fail(c, h.Logger, err)
	}
	return message(c, http.StatusOK, fmt.Sprintf("%s role deleted.", req.Name))
}

func (h *RoleHandler) Assign(c echo.Context) error {
	userID, role := c.Param("user_id"), c.Param("role")
	if err := h.RBAC.AssignRole(c.Request().Context(), userID, role); err != nil {
		return fail(c, h.Logger, err)
	}
	return message(c, http.StatusOK, fmt.Sprintf("Role %s assigned to user %s.", role, userID))
}

func (h *RoleHandler) Unassign(c echo.Context) error {
	userID, role := c.Param("user_id"), c.Param("role")
	if err := h.RBAC.UnassignRole(c.Request().Context(), userID, role); err != nil {
		return fail(c, h.Logger, err)
	}
	return message(c, http.StatusOK, fmt.Sprintf("Role %s unassigned from user %s.", role, userID))
}
