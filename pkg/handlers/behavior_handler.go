package handlers

import (
	"net/http"
	"sort"
	"strconv"

	"cdp-twin-api/pkg/models"
	"cdp-twin-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// BehaviorHandler 行動データ取得系のハンドラ
type BehaviorHandler struct {
	dataset *services.BehaviorDatasetService
}

// NewBehaviorHandler は新しいBehaviorHandlerを生成します。
func NewBehaviorHandler(dataset *services.BehaviorDatasetService) *BehaviorHandler {
	return &BehaviorHandler{dataset: dataset}
}

// GetBehaviorData は絞り込み付きで行動データを返します。
// persona/region は英名・中文名どちらでも指定できる。
func (h *BehaviorHandler) GetBehaviorData(c *gin.Context) {
	filter := models.BehaviorFilter{
		Persona:   c.Query("persona"),
		Region:    c.Query("region"),
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 1000 {
			respondError(c, &models.InvalidParameterError{Name: "limit", Reason: "must be an integer in [1, 1000]"})
			return
		}
		limit = parsed
	}

	records, err := h.dataset.Records(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	if len(records) > limit {
		records = records[:limit]
	}

	c.JSON(http.StatusOK, models.BehaviorResponse{
		Success: true,
		Count:   len(records),
		Data:    records,
		FiltersApplied: map[string]any{
			"persona":    filter.Persona,
			"region":     filter.Region,
			"start_date": filter.StartDate,
			"end_date":   filter.EndDate,
			"limit":      limit,
		},
		SkippedRecords: h.dataset.SkippedCount(),
	})
}

// GetBehaviorSummary は全データの集計サマリーを返します。
func (h *BehaviorHandler) GetBehaviorSummary(c *gin.Context) {
	records, err := h.dataset.Records(models.BehaviorFilter{})
	if err != nil {
		respondError(c, err)
		return
	}

	total := len(records)
	satisfactionSum := 0.0
	brandSums := make(map[string]float64)
	personaCounts := make(map[string]int)
	regionCounts := make(map[string]int)

	for _, rec := range records {
		satisfactionSum += rec.AvgSatisfaction
		for brand, share := range rec.BrandDistribution {
			brandSums[brand] += share
		}
		personaCounts[rec.Persona]++
		regionCounts[rec.Region]++
	}

	brandAvg := make(map[string]float64, len(brandSums))
	for brand, sum := range brandSums {
		brandAvg[brand] = sum / float64(total)
	}

	// 同率の場合はブランド名順で決定的に選ぶ
	topBrand := ""
	topShare := -1.0
	brands := make([]string, 0, len(brandAvg))
	for brand := range brandAvg {
		brands = append(brands, brand)
	}
	sort.Strings(brands)
	for _, brand := range brands {
		if brandAvg[brand] > topShare {
			topBrand = brand
			topShare = brandAvg[brand]
		}
	}

	c.JSON(http.StatusOK, models.BehaviorSummary{
		TotalRecords:         total,
		AverageSatisfaction:  satisfactionSum / float64(total),
		TopBrand:             topBrand,
		BrandDistributionAvg: brandAvg,
		PersonaBreakdown:     personaCounts,
		RegionBreakdown:      regionCounts,
	})
}
