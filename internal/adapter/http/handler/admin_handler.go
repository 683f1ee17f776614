package handler

import (
	"bank-ledger/internal/adapter/http/dto"
	"bank-ledger/internal/core/ports"
	"bank-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves administrator-only endpoints.
type AdminHandler struct {
	reportingSvc ports.ReportingService
	userAdminSvc ports.UserAdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(reportingSvc ports.ReportingService, userAdminSvc ports.UserAdminService) *AdminHandler {
	return &AdminHandler{reportingSvc: reportingSvc, userAdminSvc: userAdminSvc}
}

// Summary handles GET /api/v1/admin/summary.
func (h *AdminHandler) Summary(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	summary, err := h.reportingSvc.Summary(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewSummaryResponse(summary))
}

// ListUsers handles GET /api/v1/admin/users.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.userAdminSvc.ListUsers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, dto.NewUserResponse(u))
	}
	response.OK(c, out)
}

// Block handles POST /api/v1/admin/users/:username/block.
func (h *AdminHandler) Block(c *gin.Context) {
	h.setBlocked(c, true)
}

// Unblock handles POST /api/v1/admin/users/:username/unblock.
func (h *AdminHandler) Unblock(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *AdminHandler) setBlocked(c *gin.Context, blocked bool) {
	username := c.Param("username")
	if err := h.userAdminSvc.SetBlocked(c.Request.Context(), username, blocked); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"username": username, "blocked": blocked})
}
