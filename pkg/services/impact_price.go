package services

import (
	"math"

	config "cdp-twin-api/configs"
	"cdp-twin-api/pkg/models"
)

// 価格変動モデルのパラメータ（レバー名）
const (
	ParamElectricityPriceMultiplier = "electricity_price_multiplier"
	ParamPriceMultiplier            = "price_multiplier" // 別名として許容
	ParamPriceSensitivity           = "price_sensitivity"
)

// PriceChangeModel 乗法的な弾力性モデル。
// 影響ブランドの新シェア = 基準シェア × (1 + 弾力性 × (1 − 価格倍率))。
// 価格倍率 > 1（値上げ）で影響ブランドのシェアが落ち、再正規化により
// 残りのブランド（廉価な受け皿）へ相対的に流れる。
type PriceChangeModel struct {
	rules config.PriceChangeRules
}

// EventType implements ImpactModel.
func (m *PriceChangeModel) EventType() string { return models.EventPriceChange }

// EventLabel implements ImpactModel.
func (m *PriceChangeModel) EventLabel() string { return "電價調漲" }

// ValidateParams implements ImpactModel.
func (m *PriceChangeModel) ValidateParams(params map[string]float64) error {
	multiplier := priceMultiplier(params)
	if multiplier <= 0 || multiplier > 3.0 {
		return rangeError(ParamElectricityPriceMultiplier, multiplier, "must be in (0, 3.0]")
	}
	sensitivity := paramOrDefault(params, ParamPriceSensitivity, 1.0)
	if sensitivity < 0.5 || sensitivity > 2.0 {
		return rangeError(ParamPriceSensitivity, sensitivity, "must be in [0.5, 2.0]")
	}
	return nil
}

// Apply implements ImpactModel.
func (m *PriceChangeModel) Apply(profile models.PersonaProfile, baseline SegmentBaseline, params map[string]float64, _ string) (SegmentProjection, error) {
	multiplier := priceMultiplier(params)
	sensitivity := paramOrDefault(params, ParamPriceSensitivity, 1.0)

	elasticity := profile.Elasticity.Price * sensitivity
	factor := 1.0 + elasticity*(1.0-multiplier)

	dist := copyDistribution(baseline.Distribution)
	for _, brand := range m.rules.AffectedBrands {
		if share, ok := dist[brand]; ok {
			dist[brand] = clipShare(share * factor)
		}
	}
	renormalize(dist)
	assertDistribution(dist, models.EventPriceChange)

	// 値上げ分のみ満足度を押し下げる。値下げはここでは中立
	delta := -m.rules.SatisfactionSensitivity * math.Max(0, multiplier-1.0)

	return SegmentProjection{
		Distribution:      dist,
		SatisfactionDelta: delta,
	}, nil
}

func priceMultiplier(params map[string]float64) float64 {
	if v, ok := params[ParamElectricityPriceMultiplier]; ok {
		return v
	}
	return paramOrDefault(params, ParamPriceMultiplier, 1.0)
}
