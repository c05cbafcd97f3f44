package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"cdp-twin-api/pkg/models"

	"go.uber.org/zap"
)

func behaviorRecord(persona string, shares map[string]float64, adoption, engagement float64) models.BehaviorRecord {
	return models.BehaviorRecord{
		Timestamp:              time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Persona:                persona,
		Region:                 "Taipei",
		BrandDistribution:      shares,
		AvgSatisfaction:        70,
		DigitalAdoptionRate:    adoption,
		GamificationEngagement: engagement,
	}
}

func TestBuildProfileSnapshotBaseline(t *testing.T) {
	records := []models.BehaviorRecord{
		behaviorRecord("Fresh_Grad", map[string]float64{"7-Eleven": 0.6, "FamilyMart": 0.4}, 0.5, 0.4),
		behaviorRecord("Fresh_Grad", map[string]float64{"7-Eleven": 0.5, "FamilyMart": 0.5}, 0.5, 0.4),
		behaviorRecord("Fresh_Grad", map[string]float64{"7-Eleven": 0.7, "FamilyMart": 0.3}, 0.5, 0.4),
	}

	snap := BuildProfileSnapshot(records, "rev1")

	profile, err := snap.Lookup("Fresh_Grad")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if math.Abs(profile.BaselineDistribution["7-Eleven"]-0.6) > 1e-9 {
		t.Errorf("7-Eleven baseline = %.6f, expected 0.6", profile.BaselineDistribution["7-Eleven"])
	}

	total := 0.0
	for _, share := range profile.BaselineDistribution {
		total += share
	}
	if math.Abs(total-1.0) > 1e-9 {
		t.Errorf("baseline distribution sums to %.6f", total)
	}
	if !profile.Calibrated {
		t.Error("3 records should be enough for calibration")
	}
	if profile.RecordCount != 3 {
		t.Errorf("RecordCount = %d, expected 3", profile.RecordCount)
	}
}

func TestBuildProfileSnapshotFallbackElasticity(t *testing.T) {
	// 3件未満のペルソナは固定フォールバック表を使う
	records := []models.BehaviorRecord{
		behaviorRecord("Fresh_Grad", map[string]float64{"7-Eleven": 0.6, "FamilyMart": 0.4}, 0.9, 0.9),
	}

	snap := BuildProfileSnapshot(records, "rev1")
	profile, err := snap.Lookup("Fresh_Grad")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}

	if profile.Calibrated {
		t.Error("1 record should not be enough for calibration")
	}
	if profile.Elasticity != fallbackElasticity {
		t.Errorf("elasticity = %+v, expected fallback table %+v", profile.Elasticity, fallbackElasticity)
	}
}

func TestCalibrateElasticity(t *testing.T) {
	testCases := []struct {
		name           string
		count          int
		adoption       float64
		engagement     float64
		wantPrice      float64
		wantCalibrated bool
	}{
		{"low adoption raises price elasticity", 5, 0.0, 0.5, 0.75, true},
		{"high adoption lowers price elasticity", 5, 1.0, 0.5, 0.25, true},
		{"clamped at upper bound", 5, -1.0, 0.5, 0.9, true},
		{"insufficient records", 2, 0.5, 0.5, fallbackElasticity.Price, false},
	}

	for _, tc := range testCases {
		elasticity, calibrated := calibrateElasticity(tc.count, tc.adoption, tc.engagement)
		if calibrated != tc.wantCalibrated {
			t.Errorf("%s: calibrated = %v, expected %v", tc.name, calibrated, tc.wantCalibrated)
		}
		if math.Abs(elasticity.Price-tc.wantPrice) > 1e-9 {
			t.Errorf("%s: price elasticity = %.4f, expected %.4f", tc.name, elasticity.Price, tc.wantPrice)
		}
	}
}

func TestSnapshotLookupUnknownPersona(t *testing.T) {
	snap := BuildProfileSnapshot([]models.BehaviorRecord{
		behaviorRecord("Fresh_Grad", map[string]float64{"7-Eleven": 1.0}, 0.5, 0.5),
	}, "rev1")

	_, err := snap.Lookup("Retired_Couple")
	if !errors.Is(err, models.ErrUnknownPersona) {
		t.Errorf("expected ErrUnknownPersona, got %v", err)
	}

	// 中文名の別表記は正規化してから照合される
	if _, err := snap.Lookup("新鮮人"); err != nil {
		t.Errorf("Chinese alias should resolve: %v", err)
	}
}

func TestProfileServiceSnapshotCachedByRevision(t *testing.T) {
	path := writeTestJSONL(t, validLine1, validLine2)
	dataset := NewBehaviorDatasetService(path, zap.NewNop())
	service := NewProfileService(dataset, nil, zap.NewNop())

	ctx := context.Background()
	snap1, err := service.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	snap2, err := service.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if snap1 != snap2 {
		t.Error("same revision should return the same snapshot instance")
	}

	revision, _ := dataset.Revision()
	if snap1.Version != revision {
		t.Errorf("snapshot version %s does not match dataset revision %s", snap1.Version, revision)
	}
}

func TestProfileServiceRebuild(t *testing.T) {
	path := writeTestJSONL(t, validLine1, validLine2)
	dataset := NewBehaviorDatasetService(path, zap.NewNop())
	service := NewProfileService(dataset, nil, zap.NewNop())

	ctx := context.Background()
	snap1, err := service.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}

	snap2, err := service.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild returned error: %v", err)
	}
	// 内容が同じならリビジョンも同じ
	if snap1.Version != snap2.Version {
		t.Errorf("rebuild with unchanged content changed the revision: %s -> %s", snap1.Version, snap2.Version)
	}
}

func TestExactMatchResolver(t *testing.T) {
	snap := BuildProfileSnapshot([]models.BehaviorRecord{
		behaviorRecord("Fresh_Grad", map[string]float64{"7-Eleven": 1.0}, 0.5, 0.5),
	}, "rev1")

	resolver := ExactMatchResolver{}
	if _, err := resolver.Resolve(snap, "Fresh_Grad"); err != nil {
		t.Errorf("known persona should resolve: %v", err)
	}
	if _, err := resolver.Resolve(snap, "Retired_Couple"); !errors.Is(err, models.ErrUnknownPersona) {
		t.Errorf("expected ErrUnknownPersona, got %v", err)
	}
}

func TestGlobalBaselineResolver(t *testing.T) {
	records := []models.BehaviorRecord{
		behaviorRecord("Fresh_Grad", map[string]float64{"7-Eleven": 0.6, "FamilyMart": 0.4}, 0.5, 0.5),
		behaviorRecord("FinTech_Family", map[string]float64{"7-Eleven": 0.4, "FamilyMart": 0.6}, 0.5, 0.5),
	}
	snap := BuildProfileSnapshot(records, "rev1")

	resolver := GlobalBaselineResolver{}
	profile, err := resolver.Resolve(snap, "Retired_Couple")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	// 両ペルソナ1件ずつ → 全体平均は0.5/0.5
	if math.Abs(profile.BaselineDistribution["7-Eleven"]-0.5) > 1e-9 {
		t.Errorf("global baseline 7-Eleven = %.6f, expected 0.5", profile.BaselineDistribution["7-Eleven"])
	}
	if profile.Calibrated {
		t.Error("synthesized profile should not be marked calibrated")
	}
	if profile.Elasticity != fallbackElasticity {
		t.Errorf("synthesized profile should use the fallback elasticity table")
	}

	// 観測済みペルソナはそのまま返る
	known, err := resolver.Resolve(snap, "Fresh_Grad")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if known.Persona != "Fresh_Grad" {
		t.Errorf("known persona should resolve exactly, got %s", known.Persona)
	}
}
