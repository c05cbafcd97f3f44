package services

import (
	"fmt"
	"math"
	"sort"

	config "cdp-twin-api/configs"
	"cdp-twin-api/pkg/models"
)

// SegmentBaseline セグメント（ペルソナ×地域）の基準値
type SegmentBaseline struct {
	Distribution    map[string]float64
	AvgSatisfaction float64
}

// SegmentProjection モデル適用後の予測値
type SegmentProjection struct {
	Distribution      map[string]float64
	SatisfactionDelta float64
}

// ImpactModel maps an intervention to a delta on brand distribution and satisfaction.
// 実装は副作用なしの純関数で、同じ入力には必ず同じ出力を返すこと。
// 返す分布は合計1±εを満たさなければならない（違反はプログラミングエラー）。
type ImpactModel interface {
	EventType() string
	EventLabel() string

	// ValidateParams はモデル実行前にパラメータの範囲を検査します。
	ValidateParams(params map[string]float64) error

	// Apply は介入をベースラインに適用します。subtypeはtransfer系モデルのみ使用。
	Apply(profile models.PersonaProfile, baseline SegmentBaseline, params map[string]float64, subtype string) (SegmentProjection, error)
}

// NewImpactModelRegistry builds the event_type -> model dispatch table.
func NewImpactModelRegistry(rules *config.ImpactRules) map[string]ImpactModel {
	return map[string]ImpactModel{
		models.EventPriceChange: &PriceChangeModel{rules: rules.PriceChange},
		models.EventPromotion:   &PromotionModel{rules: rules.Promotion},
		models.EventCompetition: &TransferModel{eventType: models.EventCompetition, label: "競合変化", rules: rules},
		models.EventExternal:    &TransferModel{eventType: models.EventExternal, label: "外部要因", rules: rules},
	}
}

// ---- 分布操作の共通ヘルパー ----

func copyDistribution(dist map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(dist))
	for brand, share := range dist {
		out[brand] = share
	}
	return out
}

func clipShare(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// renormalize scales the distribution in place so it sums to 1.
// 全シェアが0になった場合は一様分布に倒す。
func renormalize(dist map[string]float64) {
	total := 0.0
	for _, share := range dist {
		total += share
	}
	if total <= 0 {
		uniform := 1.0 / float64(len(dist))
		for brand := range dist {
			dist[brand] = uniform
		}
		return
	}
	for brand := range dist {
		dist[brand] /= total
	}
}

// assertDistribution はモデル出力の不変条件（合計1±ε）を検査します。
// ここに到達する分布は各モデルが正規化済みのはずなので、違反は
// ユーザー入力の問題ではなくモデル実装のバグとして即座に落とす。
func assertDistribution(dist map[string]float64, context string) {
	total := 0.0
	for _, share := range dist {
		total += share
	}
	if math.Abs(total-1.0) > models.DistributionTolerance {
		panic(fmt.Sprintf("impact model %s produced distribution summing to %.6f", context, total))
	}
}

func paramOrDefault(params map[string]float64, name string, def float64) float64 {
	if v, ok := params[name]; ok {
		return v
	}
	return def
}

// sortedBrands は決定的な反復順のためのキー列を返します。
func sortedBrands(dist map[string]float64) []string {
	brands := make([]string, 0, len(dist))
	for brand := range dist {
		brands = append(brands, brand)
	}
	sort.Strings(brands)
	return brands
}

func rangeError(name string, v float64, description string) error {
	return &models.InvalidParameterError{
		Name:   name,
		Reason: fmt.Sprintf("value %.4f out of range (%s)", v, description),
	}
}
