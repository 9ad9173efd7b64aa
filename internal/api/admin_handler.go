package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradeinsight/internal/database"
)

// AdminHandler serves operator-only endpoints
type AdminHandler struct {
	db      *database.DB
	started time.Time
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(db *database.DB) *AdminHandler {
	return &AdminHandler{db: db, started: time.Now().UTC()}
}

// Stats reports process uptime and database pool statistics
// @Summary Service statistics
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response
// @Router /api/v1/admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"started": h.started,
			"uptime":  time.Since(h.started).String(),
			"db_pool": h.db.GetPoolStats(),
		},
	})
}
