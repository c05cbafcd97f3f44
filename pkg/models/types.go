package models

import "time"

// イベントタイプの列挙
const (
	EventPriceChange = "price_change"
	EventPromotion   = "promotion"
	EventCompetition = "competition"
	EventExternal    = "external"
)

// DistributionTolerance ブランド分布の合計1.0に対する許容誤差
const DistributionTolerance = 0.01

// BehaviorRecord represents a single behavior twin record from JSONL.
// (timestamp, persona, region) の複合キーで一意。取り込み後は不変。
type BehaviorRecord struct {
	Timestamp              time.Time          `json:"timestamp"`
	Persona                string             `json:"persona"`
	Region                 string             `json:"region"`
	BrandDistribution      map[string]float64 `json:"brand_distribution"` // ブランド -> シェア [0,1]、合計1±ε
	AvgSatisfaction        float64            `json:"avg_satisfaction"`   // 0-100
	DigitalAdoptionRate    float64            `json:"digital_adoption_rate"`
	GamificationEngagement float64            `json:"gamification_engagement"`
	TotalPersonas          int                `json:"total_personas,omitempty"` // 任意。集計時の参考値
}

// BehaviorFilter 行動データ取得時の絞り込み条件
type BehaviorFilter struct {
	Persona   string
	Region    string
	StartDate string // YYYY-MM-DD（含む）
	EndDate   string // YYYY-MM-DD（含む）
}

// IsZero reports whether no filter is set.
func (f BehaviorFilter) IsZero() bool {
	return f.Persona == "" && f.Region == "" && f.StartDate == "" && f.EndDate == ""
}

// Elasticity 介入タイプごとの感応度係数
type Elasticity struct {
	Price                   float64 `json:"price"`                    // 価格弾力性
	PromotionResponsiveness float64 `json:"promotion_responsiveness"` // 促銷反応度
	PointSensitivity        float64 `json:"point_sensitivity"`        // 点数倍率への感応度
}

// PersonaProfile represents the derived baseline for one persona.
// データセットの再読込時に丸ごと再計算される（in-placeでの変更はしない）。
type PersonaProfile struct {
	Persona              string             `json:"persona"`
	BaselineDistribution map[string]float64 `json:"baseline_distribution"` // 正規化済み（合計1）
	Elasticity           Elasticity         `json:"elasticity"`
	RecordCount          int                `json:"record_count"`
	Calibrated           bool               `json:"calibrated"` // false の場合は固定フォールバック表を使用
}

// SimulationRequest what-if シミュレーションのリクエスト
type SimulationRequest struct {
	EventType    string             `json:"event_type" binding:"required"`
	EventSubtype string             `json:"event_subtype,omitempty"` // competition/external の転移テーブル選択用
	Parameters   map[string]float64 `json:"parameters,omitempty"`
	Persona      string             `json:"persona,omitempty"`
	Region       string             `json:"region,omitempty"`
	StartDate    string             `json:"start_date,omitempty"`
	EndDate      string             `json:"end_date,omitempty"`
}

// SegmentResult ペルソナ×地域1セグメント分の予測結果
type SegmentResult struct {
	Persona               string             `json:"persona"`
	Region                string             `json:"region"`
	ProjectedDistribution map[string]float64 `json:"projected_distribution"`
	ChangeFromBaseline    map[string]float64 `json:"change_from_baseline"` // パーセントポイント（pp）
	SatisfactionDelta     float64            `json:"satisfaction_delta"`
	RecordCount           int                `json:"record_count"` // 集計時の重み
}

// SegmentFailure 部分失敗の注記。該当セグメントのみ結果から除外される。
type SegmentFailure struct {
	Segment string `json:"segment"`
	Reason  string `json:"reason"`
}

// SimulationResult what-if シミュレーションのレスポンス。リクエスト単位の一時データで永続化しない。
type SimulationResult struct {
	RunID           string                   `json:"run_id"`
	Event           string                   `json:"event"`
	EventType       string                   `json:"event_type"`
	Parameters      map[string]float64       `json:"parameters"`
	Results         map[string]SegmentResult `json:"results"` // "persona_region" -> 結果
	Insights        []string                 `json:"insights"`
	ProjectedImpact map[string]float64       `json:"projected_impact"`
	PartialFailures []SegmentFailure         `json:"partial_failures,omitempty"`
	Metadata        SimulationMetadata       `json:"metadata"`
}

// SimulationMetadata 実行メタデータ
type SimulationMetadata struct {
	SimulationTime time.Time `json:"simulation_time"`
	ModelVersion   string    `json:"model_version"`
	FinalState     string    `json:"final_state"`
	DatasetVersion string    `json:"dataset_version"`
	SegmentCount   int       `json:"segment_count"`
	FailedSegments int       `json:"failed_segments"`
}

// BehaviorSummary 行動データの全体集計
type BehaviorSummary struct {
	TotalRecords         int                `json:"total_records"`
	AverageSatisfaction  float64            `json:"average_satisfaction"`
	TopBrand             string             `json:"top_brand"`
	BrandDistributionAvg map[string]float64 `json:"brand_distribution_summary"`
	PersonaBreakdown     map[string]int     `json:"persona_breakdown"`
	RegionBreakdown      map[string]int     `json:"region_breakdown"`
}

// BehaviorResponse 行動データAPIのレスポンス
type BehaviorResponse struct {
	Success        bool             `json:"success"`
	Count          int              `json:"count"`
	Data           []BehaviorRecord `json:"data"`
	FiltersApplied map[string]any   `json:"filters_applied"`
	SkippedRecords int              `json:"skipped_records"`
}
