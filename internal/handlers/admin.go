package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
)

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	var role models.UserRole
	if raw := c.Query("role"); raw != "" {
		parsed, err := models.ParseUserRole(raw)
		if err != nil {
			h.render.Error(c, errInvalidRole)
			return
		}
		role = parsed
	}

	page, err := h.admin.ListUsers(c.Request.Context(), role, pageOptions(c))
	if err != nil {
		h.render.Error(c, err)
		return
	}
	ok(c, "", page)
}

func (h HandlerSet) AdminUserStats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		h.render.Error(c, err)
		return
	}
	ok(c, "", stats)
}
