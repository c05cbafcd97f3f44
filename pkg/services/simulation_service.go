package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"cdp-twin-api/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ModelVersion シミュレーションモデルのバージョン（レスポンスメタデータ用）
const ModelVersion = "1.0.0"

// RunState シミュレーション実行の状態。
// Idle → ResolvingSegments → ApplyingModel → Aggregating → ProducingInsights → Done。
// Failed はどのステップからも到達しうる終端状態。
type RunState string

const (
	StateIdle              RunState = "idle"
	StateResolvingSegments RunState = "resolving_segments"
	StateApplyingModel     RunState = "applying_model"
	StateAggregating       RunState = "aggregating"
	StateProducingInsights RunState = "producing_insights"
	StateDone              RunState = "done"
	StateFailed            RunState = "failed"
)

// SimulationService orchestrates the what-if simulation pipeline.
type SimulationService struct {
	dataset  *BehaviorDatasetService
	profiles *ProfileService
	registry map[string]ImpactModel
	resolver PersonaResolver
	insights *InsightBuilder
	logger   *zap.Logger

	workers        int
	segmentTimeout time.Duration
}

// NewSimulationService creates a new SimulationService.
func NewSimulationService(
	dataset *BehaviorDatasetService,
	profiles *ProfileService,
	registry map[string]ImpactModel,
	logger *zap.Logger,
	workers int,
	segmentTimeout time.Duration,
) *SimulationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	if segmentTimeout <= 0 {
		segmentTimeout = 2 * time.Second
	}
	return &SimulationService{
		dataset:        dataset,
		profiles:       profiles,
		registry:       registry,
		resolver:       ExactMatchResolver{},
		insights:       NewInsightBuilder(),
		logger:         logger,
		workers:        workers,
		segmentTimeout: segmentTimeout,
	}
}

// SetPersonaResolver swaps the persona resolution strategy.
// 未観測ペルソナをクラスタ近似で受けたい場合に差し替える。
func (s *SimulationService) SetPersonaResolver(resolver PersonaResolver) {
	s.resolver = resolver
}

// simulationRun 1リクエスト分の実行状態。リクエスト間で共有される可変状態はない。
type simulationRun struct {
	id    string
	state RunState
}

func (r *simulationRun) setState(state RunState) {
	r.state = state
}

// segment 解決済みの（ペルソナ×地域）1セグメント
type segment struct {
	persona string
	region  string

	baseline    SegmentBaseline
	recordCount int
}

// segmentOutcome 1セグメントの適用結果または失敗マーカー
type segmentOutcome struct {
	seg        segment
	projection SegmentProjection
	err        error
}

// Run executes one InterventionRequest against the current dataset snapshot.
// 部分失敗は結果に注記され、全セグメント失敗時のみErrSimulationFailedを返す。
func (s *SimulationService) Run(ctx context.Context, req models.SimulationRequest) (*models.SimulationResult, error) {
	run := &simulationRun{id: uuid.NewString(), state: StateIdle}

	result, err := s.run(ctx, run, req)
	if err != nil {
		run.setState(StateFailed)
		s.logger.Warn("simulation failed",
			zap.String("run_id", run.id),
			zap.String("event_type", req.EventType),
			zap.Error(err),
		)
		return nil, err
	}
	return result, nil
}

func (s *SimulationService) run(ctx context.Context, run *simulationRun, req models.SimulationRequest) (*models.SimulationResult, error) {
	// パラメータ検証はあらゆる計算の前に行う
	model, ok := s.registry[req.EventType]
	if !ok {
		return nil, &models.InvalidParameterError{
			Name:   "event_type",
			Reason: fmt.Sprintf("%q is not one of price_change, promotion, competition, external", req.EventType),
		}
	}
	if err := model.ValidateParams(req.Parameters); err != nil {
		return nil, err
	}

	run.setState(StateResolvingSegments)

	// リクエスト開始時点のスナップショットを最後まで使う
	snap, err := s.profiles.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if req.Persona != "" {
		if _, err := s.resolver.Resolve(snap, req.Persona); err != nil {
			return nil, err
		}
	}

	segments, err := s.resolveSegments(snap, req)
	if err != nil {
		return nil, err
	}

	run.setState(StateApplyingModel)
	outcomes := s.applyParallel(ctx, snap, model, req, segments)

	run.setState(StateAggregating)

	results := make(map[string]models.SegmentResult, len(outcomes))
	var failures []models.SegmentFailure
	for _, out := range outcomes {
		key := out.seg.persona + "_" + out.seg.region
		if out.err != nil {
			failures = append(failures, models.SegmentFailure{Segment: key, Reason: out.err.Error()})
			continue
		}
		results[key] = models.SegmentResult{
			Persona:               out.seg.persona,
			Region:                out.seg.region,
			ProjectedDistribution: out.projection.Distribution,
			ChangeFromBaseline:    distributionDelta(out.seg.baseline.Distribution, out.projection.Distribution),
			SatisfactionDelta:     out.projection.SatisfactionDelta,
			RecordCount:           out.seg.recordCount,
		}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Segment < failures[j].Segment })

	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %d segment(s) attempted", models.ErrSimulationFailed, len(outcomes))
	}

	aggregate := aggregateResults(req.EventType, req.Parameters, results)

	run.setState(StateProducingInsights)
	insights := s.insights.Build(req, aggregate)

	run.setState(StateDone)

	revision, _ := s.dataset.Revision()
	s.logger.Info("simulation completed",
		zap.String("run_id", run.id),
		zap.String("event_type", req.EventType),
		zap.Int("segments", len(results)),
		zap.Int("failed_segments", len(failures)),
	)

	return &models.SimulationResult{
		RunID:           run.id,
		Event:           model.EventLabel(),
		EventType:       req.EventType,
		Parameters:      req.Parameters,
		Results:         results,
		Insights:        insights,
		ProjectedImpact: aggregate.impact,
		PartialFailures: failures,
		Metadata: models.SimulationMetadata{
			SimulationTime: time.Now().UTC(),
			ModelVersion:   ModelVersion,
			FinalState:     string(StateDone),
			DatasetVersion: revision,
			SegmentCount:   len(outcomes),
			FailedSegments: len(failures),
		},
	}, nil
}

// resolveSegments はフィルタをデータセットと突き合わせてセグメント一覧を作ります。
func (s *SimulationService) resolveSegments(snap *ProfileSnapshot, req models.SimulationRequest) ([]segment, error) {
	records, err := s.dataset.Records(models.BehaviorFilter{
		Persona:   req.Persona,
		Region:    req.Region,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		return nil, err
	}

	type acc struct {
		distSum map[string]float64
		satSum  float64
		count   int
	}
	accs := make(map[string]*acc)
	order := make([]string, 0)
	metas := make(map[string][2]string)

	for _, rec := range records {
		key := rec.Persona + "_" + rec.Region
		a, ok := accs[key]
		if !ok {
			a = &acc{distSum: make(map[string]float64)}
			accs[key] = a
			order = append(order, key)
			metas[key] = [2]string{rec.Persona, rec.Region}
		}
		for brand, share := range rec.BrandDistribution {
			a.distSum[brand] += share
		}
		a.satSum += rec.AvgSatisfaction
		a.count++
	}

	if len(accs) == 0 {
		return nil, models.ErrNoMatchingSegments
	}

	sort.Strings(order)
	segments := make([]segment, 0, len(order))
	for _, key := range order {
		a := accs[key]
		n := float64(a.count)

		dist := make(map[string]float64, len(a.distSum))
		for brand, sum := range a.distSum {
			dist[brand] = sum / n
		}
		renormalize(dist)

		segments = append(segments, segment{
			persona: metas[key][0],
			region:  metas[key][1],
			baseline: SegmentBaseline{
				Distribution:    dist,
				AvgSatisfaction: a.satSum / n,
			},
			recordCount: a.count,
		})
	}
	return segments, nil
}

// applyParallel はセグメントごとに独立してモデルを適用します。
// セグメント間に依存はないためワーカープールで並列実行し、
// 全結果（または失敗マーカー）が揃ってから戻る。
func (s *SimulationService) applyParallel(ctx context.Context, snap *ProfileSnapshot, model ImpactModel, req models.SimulationRequest, segments []segment) []segmentOutcome {
	outcomes := make([]segmentOutcome, len(segments))

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := s.workers
	if workers > len(segments) {
		workers = len(segments)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = s.applySegment(ctx, snap, model, req, segments[i])
			}
		}()
	}

	for i := range segments {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

// applySegment は1セグメント分のモデル適用を計算予算付きで実行します。
// 予算超過はそのセグメントのモデル失敗として扱う。
func (s *SimulationService) applySegment(ctx context.Context, snap *ProfileSnapshot, model ImpactModel, req models.SimulationRequest, seg segment) segmentOutcome {
	profile, err := s.resolver.Resolve(snap, seg.persona)
	if err != nil {
		return segmentOutcome{seg: seg, err: fmt.Errorf("profile lookup: %w", err)}
	}

	segCtx, cancel := context.WithTimeout(ctx, s.segmentTimeout)
	defer cancel()

	done := make(chan segmentOutcome, 1)
	go func() {
		projection, err := model.Apply(profile, seg.baseline, req.Parameters, req.EventSubtype)
		done <- segmentOutcome{seg: seg, projection: projection, err: err}
	}()

	select {
	case out := <-done:
		return out
	case <-segCtx.Done():
		return segmentOutcome{seg: seg, err: fmt.Errorf("segment compute budget exceeded: %w", segCtx.Err())}
	}
}

// distributionDelta はベースラインからの変化をpp単位で返します。
func distributionDelta(baseline, projected map[string]float64) map[string]float64 {
	delta := make(map[string]float64, len(projected))
	for brand, share := range projected {
		delta[brand] = (share - baseline[brand]) * 100.0
	}
	for brand, share := range baseline {
		if _, ok := projected[brand]; !ok {
			delta[brand] = -share * 100.0
		}
	}
	return delta
}

// aggregateOutcome 集計ステップの出力
type aggregateOutcome struct {
	impact       map[string]float64
	brandChanges map[string]float64 // ブランド -> 人口重み付き平均変化（pp）
	satisfaction float64            // 人口重み付き平均満足度デルタ
}

// aggregateResults combines per-segment projections with population weighting.
// 重みはセグメントの履歴レコード数が全体に占める割合。
func aggregateResults(eventType string, params map[string]float64, results map[string]models.SegmentResult) aggregateOutcome {
	totalRecords := 0
	for _, r := range results {
		totalRecords += r.RecordCount
	}

	brandChanges := make(map[string]float64)
	satisfaction := 0.0
	totalShift := 0.0

	for _, r := range results {
		weight := float64(r.RecordCount) / float64(totalRecords)
		satisfaction += r.SatisfactionDelta * weight

		segmentShift := 0.0
		for brand, change := range r.ChangeFromBaseline {
			brandChanges[brand] += change * weight
			segmentShift += math.Abs(change)
		}
		if n := len(r.ChangeFromBaseline); n > 0 {
			totalShift += (segmentShift / float64(n)) * weight
		}
	}

	impact := map[string]float64{
		"avg_brand_shift_pp":       round1(totalShift),
		"satisfaction_delta":       round1(satisfaction),
		"affected_segments":        float64(len(results)),
		"confidence_score":         0.85,
		"estimated_revenue_change": estimatedRevenueChange(eventType, params, totalShift),
	}

	return aggregateOutcome{
		impact:       impact,
		brandChanges: brandChanges,
		satisfaction: satisfaction,
	}
}

// estimatedRevenueChange は粗い収益プロキシ。係数はダッシュボード表示用の目安。
func estimatedRevenueChange(eventType string, params map[string]float64, totalShift float64) float64 {
	switch eventType {
	case models.EventPriceChange:
		multiplier := priceMultiplier(params)
		return round1(-2.0 * (multiplier - 1.0))
	case models.EventPromotion:
		intensity := paramOrDefault(params, ParamPromotionIntensity, 0.0)
		pointMultiplier := paramOrDefault(params, ParamPointMultiplier, 1.0)
		return round1(3.0*intensity + (pointMultiplier - 1.0))
	default:
		return round1(totalShift * 0.5)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
