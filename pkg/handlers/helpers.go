package handlers

import (
	"errors"
	"net/http"

	"cdp-twin-api/pkg/models"

	"github.com/gin-gonic/gin"
)

// respondError はエラー分類をHTTPステータスと構造化ボディに変換します。
// 呼び出し側は常に「完全な結果・注記付きの部分結果・構造化エラー」の
// いずれかを受け取る（黙って空の成功を返すことはない）。
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var ipe *models.InvalidParameterError
	switch {
	case errors.As(err, &ipe):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrUnknownPersona):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrNoMatchingSegments):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrEmptyDataset):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrSimulationFailed):
		status = http.StatusInternalServerError
	}

	c.JSON(status, gin.H{
		"success": false,
		"error":   http.StatusText(status),
		"detail":  err.Error(),
	})
}

// HealthCheck はシンプルなヘルスチェックエンドポイントです
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "CDP Twin API",
	})
}
