package services

import (
	"fmt"

	config "cdp-twin-api/configs"
	"cdp-twin-api/pkg/models"
)

// ParamMagnitude competition/external の転移量スケール（1.0 = テーブル定義どおり）
const ParamMagnitude = "magnitude"

// referenceResponsiveness 反応度スケールの基準値（フォールバック表と同じ）。
// この値のペルソナでちょうどテーブル定義どおりの転移になる。
const referenceResponsiveness = 0.25

// TransferModel マーケットシェア転移モデル。
// competition / external は単一の式に落とし込めないため、
// イベントサブタイプをキーにした設定テーブル（impact_rules.yaml）で駆動する。
type TransferModel struct {
	eventType string
	label     string
	rules     *config.ImpactRules
}

// EventType implements ImpactModel.
func (m *TransferModel) EventType() string { return m.eventType }

// EventLabel implements ImpactModel.
func (m *TransferModel) EventLabel() string { return m.label }

// ValidateParams implements ImpactModel.
func (m *TransferModel) ValidateParams(params map[string]float64) error {
	magnitude := paramOrDefault(params, ParamMagnitude, 1.0)
	if magnitude < 0 || magnitude > 2.0 {
		return rangeError(ParamMagnitude, magnitude, "must be in [0, 2.0]")
	}
	return nil
}

// Apply implements ImpactModel.
func (m *TransferModel) Apply(profile models.PersonaProfile, baseline SegmentBaseline, params map[string]float64, subtype string) (SegmentProjection, error) {
	rule, ok := m.rules.RuleFor(m.eventType, subtype)
	if !ok {
		return SegmentProjection{}, fmt.Errorf("no transfer rule configured for event %q subtype %q", m.eventType, subtype)
	}

	magnitude := paramOrDefault(params, ParamMagnitude, 1.0)

	scale := magnitude
	if rule.ScaleByResponsiveness {
		// 促銷反応度の高いペルソナほど競合の動きに流れやすい
		scale *= profile.Elasticity.PromotionResponsiveness / referenceResponsiveness
	}

	dist := copyDistribution(baseline.Distribution)
	for _, transfer := range rule.Transfers {
		from, ok := dist[transfer.From]
		if !ok {
			continue
		}
		amount := transfer.Share * scale
		if amount > from {
			amount = from // 保有シェア以上は移せない
		}
		dist[transfer.From] = clipShare(from - amount)
		dist[transfer.To] = clipShare(dist[transfer.To] + amount)
	}

	renormalize(dist)
	assertDistribution(dist, m.eventType)

	return SegmentProjection{
		Distribution:      dist,
		SatisfactionDelta: rule.SatisfactionDelta * magnitude,
	}, nil
}
