package services

import (
	"math"
	"testing"

	config "cdp-twin-api/configs"
	"cdp-twin-api/pkg/models"
)

func testProfile() models.PersonaProfile {
	return models.PersonaProfile{
		Persona: "Fresh_Grad",
		BaselineDistribution: map[string]float64{
			"7-Eleven":   0.60,
			"FamilyMart": 0.40,
		},
		Elasticity: models.Elasticity{
			Price:                   0.5,
			PromotionResponsiveness: 0.25,
			PointSensitivity:        0.5,
		},
		RecordCount: 3,
		Calibrated:  true,
	}
}

func testBaseline() SegmentBaseline {
	return SegmentBaseline{
		Distribution: map[string]float64{
			"7-Eleven":   0.60,
			"FamilyMart": 0.40,
		},
		AvgSatisfaction: 70.0,
	}
}

func distributionSum(dist map[string]float64) float64 {
	total := 0.0
	for _, share := range dist {
		total += share
	}
	return total
}

func TestNewImpactModelRegistry(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())

	expected := []string{
		models.EventPriceChange,
		models.EventPromotion,
		models.EventCompetition,
		models.EventExternal,
	}
	for _, eventType := range expected {
		model, ok := registry[eventType]
		if !ok {
			t.Fatalf("registry missing model for %s", eventType)
		}
		if model.EventType() != eventType {
			t.Errorf("model for %s reports EventType %s", eventType, model.EventType())
		}
		if model.EventLabel() == "" {
			t.Errorf("model for %s has empty label", eventType)
		}
	}
}

func TestPriceChangeApply(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())
	model := registry[models.EventPriceChange]

	// 電價+20%、弾力性0.5 → 7-Elevenシェア 0.6×0.9=0.54、再正規化で0.54/0.94
	proj, err := model.Apply(testProfile(), testBaseline(), map[string]float64{
		ParamElectricityPriceMultiplier: 1.2,
	}, "")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	want := 0.54 / 0.94
	if math.Abs(proj.Distribution["7-Eleven"]-want) > 1e-9 {
		t.Errorf("7-Eleven share = %.6f, expected %.6f", proj.Distribution["7-Eleven"], want)
	}
	if proj.Distribution["7-Eleven"] >= 0.60 {
		t.Error("7-Eleven share should decrease when electricity price rises")
	}
	if proj.Distribution["FamilyMart"] <= 0.40 {
		t.Error("FamilyMart share should absorb the shift")
	}
	if math.Abs(proj.SatisfactionDelta-(-1.0)) > 1e-9 {
		t.Errorf("satisfaction delta = %.4f, expected -1.0", proj.SatisfactionDelta)
	}
	if math.Abs(distributionSum(proj.Distribution)-1.0) > models.DistributionTolerance {
		t.Errorf("projected distribution sums to %.6f", distributionSum(proj.Distribution))
	}
}

func TestPriceChangeNeutralMultiplier(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())
	model := registry[models.EventPriceChange]

	proj, err := model.Apply(testProfile(), testBaseline(), map[string]float64{
		ParamElectricityPriceMultiplier: 1.0,
	}, "")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if math.Abs(proj.Distribution["7-Eleven"]-0.60) > 1e-9 {
		t.Errorf("multiplier 1.0 should leave distribution unchanged, got %.6f", proj.Distribution["7-Eleven"])
	}
	if proj.SatisfactionDelta != 0 {
		t.Errorf("multiplier 1.0 should not change satisfaction, got %.4f", proj.SatisfactionDelta)
	}
}

func TestPriceChangeValidateParams(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())
	model := registry[models.EventPriceChange]

	testCases := []struct {
		name    string
		params  map[string]float64
		wantErr bool
	}{
		{"empty defaults", map[string]float64{}, false},
		{"valid multiplier", map[string]float64{ParamElectricityPriceMultiplier: 1.5}, false},
		{"legacy alias", map[string]float64{ParamPriceMultiplier: 1.2}, false},
		{"zero multiplier", map[string]float64{ParamElectricityPriceMultiplier: 0}, true},
		{"multiplier too high", map[string]float64{ParamElectricityPriceMultiplier: 3.5}, true},
		{"sensitivity too low", map[string]float64{ParamPriceSensitivity: 0.1}, true},
		{"sensitivity too high", map[string]float64{ParamPriceSensitivity: 2.5}, true},
	}

	for _, tc := range testCases {
		err := model.ValidateParams(tc.params)
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if tc.wantErr && !models.IsInvalidParameter(err) {
			if err != nil {
				t.Errorf("%s: error is not InvalidParameterError: %v", tc.name, err)
			}
		}
	}
}

func TestPromotionApply(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())
	model := registry[models.EventPromotion]

	// gain = 0.8×0.25×(1+0.5×(2.0−1)) = 0.3 → MaxGain 0.20 でキャップ
	proj, err := model.Apply(testProfile(), testBaseline(), map[string]float64{
		ParamPromotionIntensity: 0.8,
		ParamPointMultiplier:    2.0,
	}, "")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if math.Abs(proj.Distribution["FamilyMart"]-0.60) > 1e-9 {
		t.Errorf("FamilyMart share = %.6f, expected 0.60 (capped gain)", proj.Distribution["FamilyMart"])
	}
	if math.Abs(proj.Distribution["7-Eleven"]-0.40) > 1e-9 {
		t.Errorf("7-Eleven share = %.6f, expected 0.40", proj.Distribution["7-Eleven"])
	}
	if math.Abs(proj.SatisfactionDelta-1.6) > 1e-9 {
		t.Errorf("satisfaction delta = %.4f, expected 1.6", proj.SatisfactionDelta)
	}
}

func TestPromotionMaxIntensity(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())
	model := registry[models.EventPromotion]

	// intensity=1、点数倍率5.0 → gain は必ずMaxGainでキャップされる
	proj, err := model.Apply(testProfile(), testBaseline(), map[string]float64{
		ParamPromotionIntensity: 1.0,
		ParamPointMultiplier:    5.0,
	}, "")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	gain := proj.Distribution["FamilyMart"] - 0.40
	if math.Abs(gain-0.20) > 1e-9 {
		t.Errorf("gain = %.6f, expected configured max 0.20", gain)
	}
	for brand, share := range proj.Distribution {
		if share < 0 || share > 1 {
			t.Errorf("%s share %.6f out of [0,1]", brand, share)
		}
	}
}

func TestPromotionZeroIntensity(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())
	model := registry[models.EventPromotion]

	proj, err := model.Apply(testProfile(), testBaseline(), map[string]float64{
		ParamPromotionIntensity: 0,
	}, "")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if math.Abs(proj.Distribution["FamilyMart"]-0.40) > 1e-9 {
		t.Errorf("zero intensity should leave distribution unchanged, got %.6f", proj.Distribution["FamilyMart"])
	}
	if proj.SatisfactionDelta != 0 {
		t.Errorf("zero intensity should not change satisfaction, got %.4f", proj.SatisfactionDelta)
	}
}

func TestPromotionNoCompetitors(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())
	model := registry[models.EventPromotion]

	// 対象ブランドが市場を独占している場合、移せるシェアがない
	baseline := SegmentBaseline{
		Distribution:    map[string]float64{"FamilyMart": 1.0},
		AvgSatisfaction: 70.0,
	}
	proj, err := model.Apply(testProfile(), baseline, map[string]float64{
		ParamPromotionIntensity: 1.0,
	}, "")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if math.Abs(proj.Distribution["FamilyMart"]-1.0) > 1e-9 {
		t.Errorf("monopoly share should stay 1.0, got %.6f", proj.Distribution["FamilyMart"])
	}
}

func TestPromotionValidateParams(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())
	model := registry[models.EventPromotion]

	testCases := []struct {
		name    string
		params  map[string]float64
		wantErr bool
	}{
		{"boundary intensity 0", map[string]float64{ParamPromotionIntensity: 0}, false},
		{"boundary intensity 1", map[string]float64{ParamPromotionIntensity: 1}, false},
		{"negative intensity", map[string]float64{ParamPromotionIntensity: -0.1}, true},
		{"intensity above 1", map[string]float64{ParamPromotionIntensity: 1.1}, true},
		{"point multiplier too low", map[string]float64{ParamPointMultiplier: 0.1}, true},
		{"point multiplier too high", map[string]float64{ParamPointMultiplier: 6.0}, true},
	}

	for _, tc := range testCases {
		err := model.ValidateParams(tc.params)
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
	}
}

func TestTransferApplyCompetition(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())
	model := registry[models.EventCompetition]

	baseline := SegmentBaseline{
		Distribution: map[string]float64{
			"7-Eleven":   0.60,
			"FamilyMart": 0.30,
			"Other":      0.10,
		},
		AvgSatisfaction: 70.0,
	}

	// 反応度0.25は基準値と同じなのでテーブル定義どおりの転移になる
	proj, err := model.Apply(testProfile(), baseline, nil, "")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	expected := map[string]float64{
		"7-Eleven":   0.57,
		"FamilyMart": 0.35,
		"Other":      0.08,
	}
	for brand, want := range expected {
		if math.Abs(proj.Distribution[brand]-want) > 1e-9 {
			t.Errorf("%s share = %.6f, expected %.6f", brand, proj.Distribution[brand], want)
		}
	}
	if math.Abs(proj.SatisfactionDelta-(-0.5)) > 1e-9 {
		t.Errorf("satisfaction delta = %.4f, expected -0.5", proj.SatisfactionDelta)
	}
}

func TestTransferApplySubtype(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())
	model := registry[models.EventExternal]

	baseline := SegmentBaseline{
		Distribution: map[string]float64{
			"7-Eleven":   0.50,
			"FamilyMart": 0.40,
			"Other":      0.10,
		},
		AvgSatisfaction: 70.0,
	}

	proj, err := model.Apply(testProfile(), baseline, nil, "weather")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if math.Abs(proj.Distribution["7-Eleven"]-0.53) > 1e-9 {
		t.Errorf("weather subtype: 7-Eleven share = %.6f, expected 0.53", proj.Distribution["7-Eleven"])
	}
	if math.Abs(proj.Distribution["Other"]-0.07) > 1e-9 {
		t.Errorf("weather subtype: Other share = %.6f, expected 0.07", proj.Distribution["Other"])
	}
}

func TestTransferClampsToHeldShare(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())
	model := registry[models.EventExternal]

	// Otherの保有シェアが転移量より小さい場合、保有分までしか移らない
	baseline := SegmentBaseline{
		Distribution: map[string]float64{
			"7-Eleven":   0.59,
			"FamilyMart": 0.40,
			"Other":      0.01,
		},
		AvgSatisfaction: 70.0,
	}

	proj, err := model.Apply(testProfile(), baseline, nil, "weather")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	if math.Abs(proj.Distribution["Other"]-0.0) > 1e-9 {
		t.Errorf("Other share = %.6f, expected 0", proj.Distribution["Other"])
	}
	if math.Abs(proj.Distribution["7-Eleven"]-0.60) > 1e-9 {
		t.Errorf("7-Eleven share = %.6f, expected 0.60", proj.Distribution["7-Eleven"])
	}
}

func TestTransferUnknownSubtypeFallsBackToDefault(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())
	model := registry[models.EventCompetition]

	baseline := SegmentBaseline{
		Distribution: map[string]float64{
			"7-Eleven":   0.60,
			"FamilyMart": 0.30,
			"Other":      0.10,
		},
		AvgSatisfaction: 70.0,
	}

	withDefault, err := model.Apply(testProfile(), baseline, nil, "")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	withUnknown, err := model.Apply(testProfile(), baseline, nil, "nonexistent_campaign")
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	for brand := range withDefault.Distribution {
		if math.Abs(withDefault.Distribution[brand]-withUnknown.Distribution[brand]) > 1e-9 {
			t.Errorf("unknown subtype should fall back to default rule (brand %s)", brand)
		}
	}
}

func TestAllModelsPreserveDistributionSum(t *testing.T) {
	registry := NewImpactModelRegistry(config.DefaultImpactRules())

	baseline := SegmentBaseline{
		Distribution: map[string]float64{
			"7-Eleven":   0.55,
			"FamilyMart": 0.35,
			"Other":      0.10,
		},
		AvgSatisfaction: 75.0,
	}

	params := map[string]map[string]float64{
		models.EventPriceChange: {ParamElectricityPriceMultiplier: 1.5},
		models.EventPromotion:   {ParamPromotionIntensity: 0.7, ParamPointMultiplier: 3.0},
		models.EventCompetition: {ParamMagnitude: 1.5},
		models.EventExternal:    {ParamMagnitude: 0.5},
	}

	for eventType, model := range registry {
		proj, err := model.Apply(testProfile(), baseline, params[eventType], "")
		if err != nil {
			t.Fatalf("%s: Apply returned error: %v", eventType, err)
		}
		sum := distributionSum(proj.Distribution)
		if math.Abs(sum-1.0) > models.DistributionTolerance {
			t.Errorf("%s: projected distribution sums to %.6f", eventType, sum)
		}
	}
}

func TestRenormalize(t *testing.T) {
	dist := map[string]float64{"A": 0.2, "B": 0.2}
	renormalize(dist)
	if math.Abs(dist["A"]-0.5) > 1e-9 || math.Abs(dist["B"]-0.5) > 1e-9 {
		t.Errorf("renormalize failed: %v", dist)
	}

	// 全シェア0は一様分布に倒れる
	zero := map[string]float64{"A": 0, "B": 0, "C": 0}
	renormalize(zero)
	for brand, share := range zero {
		if math.Abs(share-1.0/3.0) > 1e-9 {
			t.Errorf("zero distribution: %s = %.6f, expected 1/3", brand, share)
		}
	}
}
