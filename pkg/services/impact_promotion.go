package services

import (
	config "cdp-twin-api/configs"
	"cdp-twin-api/pkg/models"
)

// 促銷モデルのパラメータ
const (
	ParamPromotionIntensity = "promotion_intensity"
	ParamPointMultiplier    = "point_multiplier"
)

// PromotionModel コンバージョンリフトモデル。
// 対象ブランドのシェアが intensity × 反応度 × 点数加成 だけ増え、
// 増分は競合ブランドのシェアから比例配分で差し引かれる（合計は1のまま）。
type PromotionModel struct {
	rules config.PromotionRules
}

// EventType implements ImpactModel.
func (m *PromotionModel) EventType() string { return models.EventPromotion }

// EventLabel implements ImpactModel.
func (m *PromotionModel) EventLabel() string { return "促銷活動" }

// ValidateParams implements ImpactModel.
func (m *PromotionModel) ValidateParams(params map[string]float64) error {
	intensity := paramOrDefault(params, ParamPromotionIntensity, 0.0)
	if intensity < 0 || intensity > 1 {
		return rangeError(ParamPromotionIntensity, intensity, "must be in [0, 1]")
	}
	multiplier := paramOrDefault(params, ParamPointMultiplier, 1.0)
	if multiplier < 0.5 || multiplier > 5.0 {
		return rangeError(ParamPointMultiplier, multiplier, "must be in [0.5, 5.0]")
	}
	return nil
}

// Apply implements ImpactModel.
func (m *PromotionModel) Apply(profile models.PersonaProfile, baseline SegmentBaseline, params map[string]float64, _ string) (SegmentProjection, error) {
	intensity := paramOrDefault(params, ParamPromotionIntensity, 0.0)
	pointMultiplier := paramOrDefault(params, ParamPointMultiplier, 1.0)

	// 点数倍率はペルソナの感応度を通してのみ効く（倍率1.0で中立）
	pointBoost := 1.0 + profile.Elasticity.PointSensitivity*(pointMultiplier-1.0)
	if pointBoost < 0 {
		pointBoost = 0
	}

	gain := intensity * profile.Elasticity.PromotionResponsiveness * pointBoost
	if gain > m.rules.MaxGain {
		gain = m.rules.MaxGain
	}

	dist := copyDistribution(baseline.Distribution)
	target := m.rules.TargetBrand
	base := dist[target]

	// シェア上限1でクリップし、実際に配分可能な増分だけ競合から移す
	newTarget := clipShare(base + gain)
	actualGain := newTarget - base

	competitorTotal := 0.0
	for _, brand := range sortedBrands(dist) {
		if brand != target {
			competitorTotal += dist[brand]
		}
	}
	if competitorTotal <= 0 {
		// 競合が存在しない場合は移せるシェアがない
		actualGain = 0
		newTarget = base
	}

	if actualGain > 0 {
		for _, brand := range sortedBrands(dist) {
			if brand == target {
				continue
			}
			dist[brand] = clipShare(dist[brand] - actualGain*(dist[brand]/competitorTotal))
		}
		dist[target] = newTarget
	}

	renormalize(dist)
	assertDistribution(dist, models.EventPromotion)

	return SegmentProjection{
		Distribution:      dist,
		SatisfactionDelta: m.rules.SatisfactionGain * intensity,
	}, nil
}
