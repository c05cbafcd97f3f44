package handlers

import (
	"net/http"

	"cdp-twin-api/pkg/models"
	"cdp-twin-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// SimulationHandler what-if シミュレーション系のハンドラ
type SimulationHandler struct {
	engine     *services.SimulationService
	monitoring *services.MonitoringService
}

// NewSimulationHandler は新しいSimulationHandlerを生成します。
func NewSimulationHandler(engine *services.SimulationService, monitoring *services.MonitoringService) *SimulationHandler {
	return &SimulationHandler{
		engine:     engine,
		monitoring: monitoring,
	}
}

// GetSimulationParameters は利用可能なパラメータと有効範囲を返します。
// ダッシュボードのフォーム生成用カタログ。
func (h *SimulationHandler) GetSimulationParameters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"event_types": []gin.H{
			{"id": models.EventPriceChange, "name": "電價/價格變動", "description": "価格変化が消費行動へ与える影響をシミュレート"},
			{"id": models.EventPromotion, "name": "促銷活動", "description": "割引・点数などの促銷効果をシミュレート"},
			{"id": models.EventCompetition, "name": "競合變化", "description": "競合他社の動きをシミュレート"},
			{"id": models.EventExternal, "name": "外部因素", "description": "天候・節慶などの外部要因"},
		},
		"parameters": gin.H{
			services.ParamElectricityPriceMultiplier: gin.H{
				"type":        "float",
				"range":       []float64{0.5, 3.0},
				"default":     1.0,
				"description": "電價倍率（1.0 = 変化なし）",
			},
			services.ParamPointMultiplier: gin.H{
				"type":        "float",
				"range":       []float64{0.5, 5.0},
				"default":     1.0,
				"description": "点数加成倍率",
			},
			services.ParamPromotionIntensity: gin.H{
				"type":        "float",
				"range":       []float64{0.0, 1.0},
				"default":     0.0,
				"description": "促銷強度（0-1）",
			},
			services.ParamPriceSensitivity: gin.H{
				"type":        "float",
				"range":       []float64{0.5, 2.0},
				"default":     1.0,
				"description": "消費者の価格感応度",
			},
			services.ParamMagnitude: gin.H{
				"type":        "float",
				"range":       []float64{0.0, 2.0},
				"default":     1.0,
				"description": "転移テーブルのスケール（competition/external用）",
			},
		},
		"personas": []string{"Fresh_Grad", "FinTech_Family"},
		"regions":  []string{"Taipei", "Tainan"},
	})
}

// RunSimulation は what-if 分析を実行します。
// 部分失敗は partial_failures として結果に注記される。
func (h *SimulationHandler) RunSimulation(c *gin.Context) {
	var req models.SimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &models.InvalidParameterError{Name: "body", Reason: err.Error()})
		return
	}

	result, err := h.engine.Run(c.Request.Context(), req)
	if err != nil {
		h.monitoring.RecordSimulation(false)
		respondError(c, err)
		return
	}

	h.monitoring.RecordSimulation(true)
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"run_id":           result.RunID,
		"event":            result.Event,
		"event_type":       result.EventType,
		"parameters":       result.Parameters,
		"results":          result.Results,
		"insights":         result.Insights,
		"projected_impact": result.ProjectedImpact,
		"partial_failures": result.PartialFailures,
		"metadata":         result.Metadata,
	})
}
