package services

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cdp-twin-api/pkg/models"

	"go.uber.org/zap"
)

// 受け付けるタイムスタンプ形式（月次粒度が基本だが日次・RFC3339も許容）
var datasetDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006/01/02",
}

// BehaviorDatasetService loads behavior twin records from a JSONL (or xlsx) source.
// 遅延ロード＋キャッシュで、同一ソースの再読込は同じ順序の列を返す。
// 不正レコードは警告ログ付きでスキップし、全件不正の場合のみロード失敗とする。
type BehaviorDatasetService struct {
	mu       sync.RWMutex
	path     string
	logger   *zap.Logger
	loaded   bool
	records  []models.BehaviorRecord
	revision string
	skipped  int
}

// NewBehaviorDatasetService creates a new BehaviorDatasetService for the given source file.
func NewBehaviorDatasetService(path string, logger *zap.Logger) *BehaviorDatasetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BehaviorDatasetService{
		path:   path,
		logger: logger,
	}
}

// Path はデータソースのパスを返します。
func (s *BehaviorDatasetService) Path() string {
	return s.path
}

// Records returns the ordered record sequence after applying the filter.
// ソースは初回アクセス時に読み込まれ、以降はキャッシュから絞り込みのみ行う。
func (s *BehaviorDatasetService) Records(filter models.BehaviorFilter) ([]models.BehaviorRecord, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter.IsZero() {
		out := make([]models.BehaviorRecord, len(s.records))
		copy(out, s.records)
		return out, nil
	}

	persona := NormalizePersona(filter.Persona)
	region := NormalizeRegion(filter.Region)

	start, end, err := parseDateRange(filter.StartDate, filter.EndDate)
	if err != nil {
		return nil, err
	}

	filtered := make([]models.BehaviorRecord, 0, len(s.records))
	for _, rec := range s.records {
		if persona != "" && !strings.EqualFold(rec.Persona, persona) {
			continue
		}
		if region != "" && !strings.EqualFold(rec.Region, region) {
			continue
		}
		if !start.IsZero() && rec.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && rec.Timestamp.After(end) {
			continue
		}
		filtered = append(filtered, rec)
	}
	return filtered, nil
}

// Revision はデータセット内容のハッシュを返します。
// プロファイルスナップショットのバージョンキーとして使用する。
func (s *BehaviorDatasetService) Revision() (string, error) {
	if err := s.ensureLoaded(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, nil
}

// SkippedCount は直近のロードでスキップされた不正レコード数を返します。
func (s *BehaviorDatasetService) SkippedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skipped
}

// Reload discards the cache and re-reads the source on next access.
func (s *BehaviorDatasetService) Reload() error {
	s.mu.Lock()
	s.loaded = false
	s.records = nil
	s.revision = ""
	s.skipped = 0
	s.mu.Unlock()
	return s.ensureLoaded()
}

func (s *BehaviorDatasetService) ensureLoaded() error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	var (
		records  []models.BehaviorRecord
		revision string
		skipped  int
		err      error
	)
	if strings.HasSuffix(strings.ToLower(s.path), ".xlsx") {
		records, revision, skipped, err = s.loadExcel()
	} else {
		records, revision, skipped, err = s.loadJSONL()
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		if skipped > 0 {
			return fmt.Errorf("%w: all %d records in %s are malformed", models.ErrEmptyDataset, skipped, filepath.Base(s.path))
		}
		return fmt.Errorf("%w: %s", models.ErrEmptyDataset, filepath.Base(s.path))
	}

	s.records = records
	s.revision = revision
	s.skipped = skipped
	s.loaded = true

	s.logger.Info("behavior dataset loaded",
		zap.String("source", s.path),
		zap.Int("records", len(records)),
		zap.Int("skipped", skipped),
		zap.String("revision", revision),
	)
	return nil
}

func (s *BehaviorDatasetService) loadJSONL() ([]models.BehaviorRecord, string, int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, "", 0, fmt.Errorf("behavior dataset read failed: %w", err)
	}

	sum := sha256.Sum256(data)
	revision := hex.EncodeToString(sum[:8])

	var (
		records []models.BehaviorRecord
		skipped int
	)
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 1024*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := parseBehaviorLine([]byte(line), lineNo)
		if err != nil {
			skipped++
			s.logger.Warn("skipping malformed behavior record", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, "", 0, fmt.Errorf("behavior dataset scan failed: %w", err)
	}

	return records, revision, skipped, nil
}

// rawBehaviorRecord はJSONLの1行をそのまま受けるための中間形。
// 旧形式（group / brand_percentages: 0-100）との互換を持たせる。
type rawBehaviorRecord struct {
	Timestamp              string             `json:"timestamp"`
	Persona                string             `json:"persona"`
	Group                  string             `json:"group"`
	Region                 string             `json:"region"`
	BrandDistribution      map[string]float64 `json:"brand_distribution"`
	BrandPercentages       map[string]float64 `json:"brand_percentages"`
	AvgSatisfaction        *float64           `json:"avg_satisfaction"`
	DigitalAdoptionRate    *float64           `json:"digital_adoption_rate"`
	GamificationEngagement *float64           `json:"gamification_engagement"`
	TotalPersonas          int                `json:"total_personas"`
}

func parseBehaviorLine(line []byte, lineNo int) (models.BehaviorRecord, error) {
	var raw rawBehaviorRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return models.BehaviorRecord{}, &models.DataFormatError{Line: lineNo, Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	return buildBehaviorRecord(raw, lineNo)
}

// buildBehaviorRecord は中間形を検証して不変レコードへ変換します。
// JSONL・Excel両方のローダーが同じ検証を通る。
func buildBehaviorRecord(raw rawBehaviorRecord, lineNo int) (models.BehaviorRecord, error) {
	persona := raw.Persona
	if persona == "" {
		persona = raw.Group
	}
	if persona == "" {
		return models.BehaviorRecord{}, &models.DataFormatError{Line: lineNo, Reason: "missing persona"}
	}
	if raw.Region == "" {
		return models.BehaviorRecord{}, &models.DataFormatError{Line: lineNo, Reason: "missing region"}
	}

	ts, err := parseDatasetTimestamp(raw.Timestamp)
	if err != nil {
		return models.BehaviorRecord{}, &models.DataFormatError{Line: lineNo, Reason: fmt.Sprintf("bad timestamp %q", raw.Timestamp)}
	}

	dist := raw.BrandDistribution
	if len(dist) == 0 && len(raw.BrandPercentages) > 0 {
		// 旧形式はパーセント表記（0-100）
		dist = make(map[string]float64, len(raw.BrandPercentages))
		for brand, pct := range raw.BrandPercentages {
			dist[brand] = pct / 100.0
		}
	}
	if len(dist) == 0 {
		return models.BehaviorRecord{}, &models.DataFormatError{Line: lineNo, Reason: "missing brand_distribution"}
	}

	total := 0.0
	for brand, share := range dist {
		if share < 0 || share > 1 {
			return models.BehaviorRecord{}, &models.DataFormatError{Line: lineNo, Reason: fmt.Sprintf("brand %q share %.4f out of [0,1]", brand, share)}
		}
		total += share
	}
	if math.Abs(total-1.0) > models.DistributionTolerance {
		return models.BehaviorRecord{}, &models.DataFormatError{Line: lineNo, Reason: fmt.Sprintf("brand distribution sums to %.4f, expected 1±%.2f", total, models.DistributionTolerance)}
	}

	if raw.AvgSatisfaction == nil {
		return models.BehaviorRecord{}, &models.DataFormatError{Line: lineNo, Reason: "missing avg_satisfaction"}
	}
	if *raw.AvgSatisfaction < 0 || *raw.AvgSatisfaction > 100 {
		return models.BehaviorRecord{}, &models.DataFormatError{Line: lineNo, Reason: fmt.Sprintf("avg_satisfaction %.2f out of [0,100]", *raw.AvgSatisfaction)}
	}

	adoption := 0.0
	if raw.DigitalAdoptionRate != nil {
		adoption = *raw.DigitalAdoptionRate
	}
	engagement := 0.0
	if raw.GamificationEngagement != nil {
		engagement = *raw.GamificationEngagement
	}
	if adoption < 0 || adoption > 1 {
		return models.BehaviorRecord{}, &models.DataFormatError{Line: lineNo, Reason: fmt.Sprintf("digital_adoption_rate %.4f out of [0,1]", adoption)}
	}
	if engagement < 0 || engagement > 1 {
		return models.BehaviorRecord{}, &models.DataFormatError{Line: lineNo, Reason: fmt.Sprintf("gamification_engagement %.4f out of [0,1]", engagement)}
	}

	return models.BehaviorRecord{
		Timestamp:              ts,
		Persona:                NormalizePersona(persona),
		Region:                 NormalizeRegion(raw.Region),
		BrandDistribution:      dist,
		AvgSatisfaction:        *raw.AvgSatisfaction,
		DigitalAdoptionRate:    adoption,
		GamificationEngagement: engagement,
		TotalPersonas:          raw.TotalPersonas,
	}, nil
}

func parseDatasetTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range datasetDateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format")
}

// parseDateRange はフィルタの日付境界を解釈します。終端はその日の終わりまで含む。
func parseDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	var start, end time.Time
	if startDate != "" {
		t, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return start, end, &models.InvalidParameterError{Name: "start_date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", startDate)}
		}
		start = t.UTC()
	}
	if endDate != "" {
		t, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return start, end, &models.InvalidParameterError{Name: "end_date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", endDate)}
		}
		end = t.UTC().Add(24*time.Hour - time.Nanosecond)
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return start, end, &models.InvalidParameterError{Name: "start_date", Reason: "start_date is after end_date"}
	}
	return start, end, nil
}
