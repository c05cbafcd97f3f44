package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"cdp-twin-api/pkg/models"

	"go.uber.org/zap"
)

// minCalibrationRecords この件数未満のペルソナは固定フォールバック表を使う
const minCalibrationRecords = 3

// fallbackElasticity スパースなペルソナ向けの固定弾力性表。
// エンジンが新規ペルソナで落ちないことを保証するための決定的なデフォルト。
var fallbackElasticity = models.Elasticity{
	Price:                   0.5,
	PromotionResponsiveness: 0.25,
	PointSensitivity:        0.5,
}

// ProfileSnapshot データセットの1リビジョンから導出した不変のプロファイル集合。
// 再構築は常に新しいスナップショットへの差し替えで行い、部分的な書き換えはしない。
type ProfileSnapshot struct {
	Version      string                           `json:"version"`
	Profiles     map[string]models.PersonaProfile `json:"profiles"`
	TotalRecords int                              `json:"total_records"`
	BuiltAt      time.Time                        `json:"built_at"`
}

// Lookup returns the profile for a persona observed in the dataset.
func (snap *ProfileSnapshot) Lookup(persona string) (models.PersonaProfile, error) {
	profile, ok := snap.Profiles[NormalizePersona(persona)]
	if !ok {
		return models.PersonaProfile{}, fmt.Errorf("%w: %q", models.ErrUnknownPersona, persona)
	}
	return profile, nil
}

// Personas はスナップショットに含まれるペルソナ名をソート済みで返します。
func (snap *ProfileSnapshot) Personas() []string {
	names := make([]string, 0, len(snap.Profiles))
	for name := range snap.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildProfileSnapshot derives persona profiles from behavior records.
// ベースライン分布は各ブランドシェアの単純平均を再正規化したもの。
func BuildProfileSnapshot(records []models.BehaviorRecord, version string) *ProfileSnapshot {
	type accumulator struct {
		distSum       map[string]float64
		adoptionSum   float64
		engagementSum float64
		count         int
	}

	accs := make(map[string]*accumulator)
	for _, rec := range records {
		acc, ok := accs[rec.Persona]
		if !ok {
			acc = &accumulator{distSum: make(map[string]float64)}
			accs[rec.Persona] = acc
		}
		for brand, share := range rec.BrandDistribution {
			acc.distSum[brand] += share
		}
		acc.adoptionSum += rec.DigitalAdoptionRate
		acc.engagementSum += rec.GamificationEngagement
		acc.count++
	}

	profiles := make(map[string]models.PersonaProfile, len(accs))
	for persona, acc := range accs {
		n := float64(acc.count)

		baseline := make(map[string]float64, len(acc.distSum))
		for brand, sum := range acc.distSum {
			baseline[brand] = sum / n
		}
		renormalize(baseline)

		elasticity, calibrated := calibrateElasticity(acc.count, acc.adoptionSum/n, acc.engagementSum/n)

		profiles[persona] = models.PersonaProfile{
			Persona:              persona,
			BaselineDistribution: baseline,
			Elasticity:           elasticity,
			RecordCount:          acc.count,
			Calibrated:           calibrated,
		}
	}

	return &ProfileSnapshot{
		Version:      version,
		Profiles:     profiles,
		TotalRecords: len(records),
		BuiltAt:      time.Now().UTC(),
	}
}

// calibrateElasticity は履歴から決定的に弾力性を導出します。
// 正確な回帰フィッティングは別パイプラインの責務で、ここでは
// デジタル採用度・エンゲージメントの平均から単調な近似を取る。
// レコードが少なすぎる場合はフォールバック表で代用する。
func calibrateElasticity(count int, meanAdoption, meanEngagement float64) (models.Elasticity, bool) {
	if count < minCalibrationRecords {
		return fallbackElasticity, false
	}

	// デジタル定着度が低いほど価格でスイッチしやすく、
	// ゲーミフィケーション参加度が高いほど促銷・点数に反応しやすい
	return models.Elasticity{
		Price:                   clamp(0.25+0.5*(1.0-meanAdoption), 0.1, 0.9),
		PromotionResponsiveness: clamp(0.10+0.30*meanEngagement, 0.05, 0.5),
		PointSensitivity:        clamp(0.20+0.60*meanEngagement, 0.1, 0.9),
	}, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ProfileService owns the derived persona profile view of the dataset.
// スナップショットはアトミックに差し替えられ、処理中のリクエストは
// 開始時点のスナップショットを見続ける。
type ProfileService struct {
	dataset *BehaviorDatasetService
	cache   *ProfileCache
	logger  *zap.Logger

	current   atomic.Pointer[ProfileSnapshot]
	rebuildMu sync.Mutex
}

// NewProfileService creates a new ProfileService.
// cache はnil可（キャッシュなしで完全に動作する）。
func NewProfileService(dataset *BehaviorDatasetService, cache *ProfileCache, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{
		dataset: dataset,
		cache:   cache,
		logger:  logger,
	}
}

// Snapshot returns the profile snapshot for the current dataset revision,
// rebuilding it if the dataset has changed since the last build.
func (s *ProfileService) Snapshot(ctx context.Context) (*ProfileSnapshot, error) {
	revision, err := s.dataset.Revision()
	if err != nil {
		return nil, err
	}

	if snap := s.current.Load(); snap != nil && snap.Version == revision {
		return snap, nil
	}

	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	// 再チェック。待っている間に他のリクエストが構築済みの場合がある
	if snap := s.current.Load(); snap != nil && snap.Version == revision {
		return snap, nil
	}

	if snap, ok := s.cache.Get(ctx, revision); ok {
		s.current.Store(snap)
		s.logger.Info("profile snapshot restored from cache", zap.String("revision", revision))
		return snap, nil
	}

	records, err := s.dataset.Records(models.BehaviorFilter{})
	if err != nil {
		return nil, err
	}

	snap := BuildProfileSnapshot(records, revision)
	s.current.Store(snap)
	s.cache.Set(ctx, snap)

	s.logger.Info("profile snapshot rebuilt",
		zap.String("revision", revision),
		zap.Int("personas", len(snap.Profiles)),
		zap.Int("records", snap.TotalRecords),
	)
	return snap, nil
}

// Rebuild はデータセットを再読込し、スナップショットを作り直します。
func (s *ProfileService) Rebuild(ctx context.Context) (*ProfileSnapshot, error) {
	if err := s.dataset.Reload(); err != nil {
		return nil, err
	}
	return s.Snapshot(ctx)
}

// Lookup returns the profile for a persona, failing with ErrUnknownPersona
// when the id was never observed in the dataset.
func (s *ProfileService) Lookup(ctx context.Context, persona string) (models.PersonaProfile, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return models.PersonaProfile{}, err
	}
	return snap.Lookup(persona)
}
