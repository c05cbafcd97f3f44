package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	config "cdp-twin-api/configs"
	"cdp-twin-api/pkg/services"

	"github.com/gin-gonic/gin"
)

var serverStartTime = time.Now()

// AdminHandler 管理系エンドポイントのハンドラー
type AdminHandler struct {
	config     *config.Config
	dataset    *services.BehaviorDatasetService
	profiles   *services.ProfileService
	monitoring *services.MonitoringService
}

// NewAdminHandler は新しいAdminHandlerを作成します
func NewAdminHandler(cfg *config.Config, dataset *services.BehaviorDatasetService, profiles *services.ProfileService, monitoring *services.MonitoringService) *AdminHandler {
	return &AdminHandler{
		config:     cfg,
		dataset:    dataset,
		profiles:   profiles,
		monitoring: monitoring,
	}
}

// GetHealthStatus はデータファイルとエンジンの詳細ヘルス情報を返します
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	dataFile := filepath.Join(h.config.DataPath, h.config.BehaviorFile)

	fileStatus := gin.H{
		"path":   dataFile,
		"exists": false,
	}
	if info, err := os.Stat(dataFile); err == nil {
		fileStatus["exists"] = true
		fileStatus["size_bytes"] = info.Size()
		fileStatus["modified_at"] = info.ModTime().Format(time.RFC3339)
	}

	engine := h.monitoring.Health()

	status := "healthy"
	if !fileStatus["exists"].(bool) {
		status = "degraded"
	}

	revision, err := h.dataset.Revision()
	if err != nil {
		status = "degraded"
		revision = ""
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"status":           status,
		"uptime_seconds":   int(time.Since(serverStartTime).Seconds()),
		"data_file":        fileStatus,
		"dataset_revision": revision,
		"skipped_records":  h.dataset.SkippedCount(),
		"engine":           engine,
		"timestamp":        time.Now().Format(time.RFC3339),
	})
}

// ReloadDataset は行動データを再読込し、プロファイルを再構築します
func (h *AdminHandler) ReloadDataset(c *gin.Context) {
	snap, err := h.profiles.Rebuild(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         "データセットを再読込しました",
		"profile_version": snap.Version,
		"personas":        snap.Personas(),
		"total_records":   snap.TotalRecords,
	})
}
