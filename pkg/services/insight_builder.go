package services

import (
	"fmt"
	"math"
	"sort"

	"cdp-twin-api/pkg/models"
)

// InsightBuilder generates the human-readable summary lines of a simulation.
// 固定テンプレート＋計算済みデルタのみで構成し、同じ入力には必ず同じ文を返す。
type InsightBuilder struct{}

// NewInsightBuilder creates a new InsightBuilder.
func NewInsightBuilder() *InsightBuilder {
	return &InsightBuilder{}
}

// Build returns the ordered insight strings for a completed simulation.
func (b *InsightBuilder) Build(req models.SimulationRequest, agg aggregateOutcome) []string {
	var insights []string

	gainer, gain := topChange(agg.brandChanges, 1)
	loser, loss := topChange(agg.brandChanges, -1)

	switch req.EventType {
	case models.EventPriceChange:
		multiplier := priceMultiplier(req.Parameters)
		if multiplier > 1.0 {
			insights = append(insights, fmt.Sprintf("Electricity price up %d%% tightens dining-out budgets", int(math.Round((multiplier-1.0)*100))))
			if loser != "" && loss < 0 {
				insights = append(insights, fmt.Sprintf("%s projected to drop %.1f pp as price-sensitive segments shift away", loser, math.Abs(loss)))
			}
			if gainer != "" && gain > 0 {
				insights = append(insights, fmt.Sprintf("Value brand %s projected to gain %.1f pp", gainer, gain))
			}
		} else if multiplier < 1.0 {
			insights = append(insights, fmt.Sprintf("Electricity price down %d%% relaxes budget pressure", int(math.Round((1.0-multiplier)*100))))
		} else {
			insights = append(insights, "Price unchanged; consumer behavior stays at baseline")
		}

	case models.EventPromotion:
		intensity := paramOrDefault(req.Parameters, ParamPromotionIntensity, 0.0)
		pointMultiplier := paramOrDefault(req.Parameters, ParamPointMultiplier, 1.0)
		if intensity > 0 && gainer != "" && gain > 0 {
			insights = append(insights, fmt.Sprintf("Promotion intensity %.2f projected to lift %s by %.1f pp", intensity, gainer, gain))
		}
		if pointMultiplier > 1.0 {
			insights = append(insights, fmt.Sprintf("%.1fx point multiplier strengthens member stickiness", pointMultiplier))
		}
		if intensity == 0 {
			insights = append(insights, "Zero promotion intensity leaves brand shares at baseline")
		}

	case models.EventCompetition:
		insights = append(insights, "Monitor competitor campaign dynamics and adjust pricing in time")
		if gainer != "" && gain > 0 {
			insights = append(insights, fmt.Sprintf("Competitor move shifts %.1f pp of share toward %s", gain, gainer))
		}

	case models.EventExternal:
		insights = append(insights, "Weather and holiday factors drive a seasonal consumption shift")
		if gainer != "" && gain > 0 {
			insights = append(insights, fmt.Sprintf("%s benefits most from external conditions (+%.1f pp)", gainer, gain))
		}
	}

	if agg.satisfaction < 0 {
		insights = append(insights, fmt.Sprintf("Average satisfaction projected to fall by %.1f points", math.Abs(agg.satisfaction)))
	}

	if len(insights) == 0 {
		insights = append(insights, "Recommend an A/B test to validate model projections")
	}
	return insights
}

// topChange returns the brand with the largest change in the given direction.
// 同値の場合はブランド名順で決定的に選ぶ。
func topChange(changes map[string]float64, sign float64) (string, float64) {
	brands := make([]string, 0, len(changes))
	for brand := range changes {
		brands = append(brands, brand)
	}
	sort.Strings(brands)

	best := ""
	bestValue := 0.0
	for _, brand := range brands {
		v := changes[brand] * sign
		if v > bestValue {
			best = brand
			bestValue = v
		}
	}
	return best, changes[best]
}
