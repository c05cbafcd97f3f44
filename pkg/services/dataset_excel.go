package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cdp-twin-api/pkg/models"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ダッシュボード運用チームがExcelで整備した行動データも同じ契約で受け付ける。
// 1シート目をヘッダー付き表として読む。固定列以外のヘッダーはブランド名として扱い、
// セル値をシェア（0-1）と解釈する。

var excelFixedColumns = map[string]struct{}{
	"timestamp":               {},
	"persona":                 {},
	"group":                   {},
	"region":                  {},
	"avg_satisfaction":        {},
	"digital_adoption_rate":   {},
	"gamification_engagement": {},
	"total_personas":          {},
}

func (s *BehaviorDatasetService) loadExcel() ([]models.BehaviorRecord, string, int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, "", 0, fmt.Errorf("behavior workbook read failed: %w", err)
	}
	sum := sha256.Sum256(data)
	revision := hex.EncodeToString(sum[:8])

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, "", 0, fmt.Errorf("behavior workbook open failed: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, "", 0, fmt.Errorf("behavior workbook rows failed: %w", err)
	}
	if len(rows) < 2 {
		return nil, revision, 0, nil
	}

	header := rows[0]
	colIndex := make(map[string]int, len(header))
	var brandColumns []int
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, fixed := excelFixedColumns[key]; fixed {
			colIndex[key] = i
		} else {
			brandColumns = append(brandColumns, i)
		}
	}
	if _, ok := colIndex["timestamp"]; !ok {
		return nil, "", 0, fmt.Errorf("behavior workbook has no timestamp column")
	}

	cell := func(row []string, key string) string {
		i, ok := colIndex[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		records []models.BehaviorRecord
		skipped int
	)
	for rowNo, row := range rows[1:] {
		lineNo := rowNo + 2 // ヘッダー行の次から

		raw := rawBehaviorRecord{
			Timestamp: cell(row, "timestamp"),
			Persona:   cell(row, "persona"),
			Group:     cell(row, "group"),
			Region:    cell(row, "region"),
		}

		if v := cell(row, "avg_satisfaction"); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				raw.AvgSatisfaction = &parsed
			}
		}
		if v := cell(row, "digital_adoption_rate"); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				raw.DigitalAdoptionRate = &parsed
			}
		}
		if v := cell(row, "gamification_engagement"); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				raw.GamificationEngagement = &parsed
			}
		}
		if v := cell(row, "total_personas"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				raw.TotalPersonas = parsed
			}
		}

		dist := make(map[string]float64)
		for _, i := range brandColumns {
			if i >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[i])
			if v == "" {
				continue
			}
			share, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			dist[strings.TrimSpace(header[i])] = share
		}
		if len(dist) > 0 {
			raw.BrandDistribution = dist
		}

		rec, err := buildBehaviorRecord(raw, lineNo)
		if err != nil {
			skipped++
			s.logger.Warn("skipping malformed behavior row", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	return records, revision, skipped, nil
}
