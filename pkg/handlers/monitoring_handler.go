package handlers

import (
	"net/http"

	"cdp-twin-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// MonitoringHandler モニタリング関連のHTTPハンドラー
type MonitoringHandler struct {
	monitoringService *services.MonitoringService
}

// NewMonitoringHandler は新しいMonitoringHandlerを作成します
func NewMonitoringHandler(monitoringService *services.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{
		monitoringService: monitoringService,
	}
}

// GetLogs はシステムログを取得します
func (h *MonitoringHandler) GetLogs(c *gin.Context) {
	period := c.DefaultQuery("period", "24h")

	var hours int
	switch period {
	case "1h":
		hours = 1
	case "24h":
		hours = 24
	case "7d":
		hours = 24 * 7
	default:
		hours = 24
	}

	data := h.monitoringService.GetDashboardData(hours)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"period":  period,
		"data":    data,
	})
}

// GetDashboard はダッシュボード用の集計データを返します
func (h *MonitoringHandler) GetDashboard(c *gin.Context) {
	data := h.monitoringService.GetDashboardData(24)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
