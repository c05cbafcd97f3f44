package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	config "cdp-twin-api/configs"
	"cdp-twin-api/pkg/models"
	"cdp-twin-api/pkg/services"

	"go.uber.org/zap"
)

// サーバーを立てずにwhat-if分析を1回実行するCLI。
// 例: go run ./cmd/simulate -data ./data/behavior_twin_monthly.jsonl \
//       -event price_change -param electricity_price_multiplier=1.2
func main() {
	var (
		dataPath  = flag.String("data", "./data/behavior_twin_monthly.jsonl", "行動データファイル (JSONL or xlsx)")
		rulesPath = flag.String("rules", "", "影響ルールYAML（未指定は組み込みデフォルト）")
		eventType = flag.String("event", "", "イベント種別 (price_change/promotion/competition/external)")
		subtype   = flag.String("subtype", "", "イベントのサブタイプ（competition/external用）")
		persona   = flag.String("persona", "", "対象ペルソナ（空なら全て）")
		region    = flag.String("region", "", "対象地域（空なら全て）")
		params    = flag.String("param", "", "パラメータ指定 name=value,name=value")
		pretty    = flag.Bool("pretty", true, "JSONを整形して出力")
	)
	flag.Parse()

	if *eventType == "" {
		flag.Usage()
		os.Exit(2)
	}

	parameters, err := parseParams(*params)
	if err != nil {
		log.Fatalf("invalid -param: %v", err)
	}

	rules := config.DefaultImpactRules()
	if *rulesPath != "" {
		rules, err = config.LoadImpactRules(*rulesPath)
		if err != nil {
			log.Fatalf("failed to load impact rules: %v", err)
		}
	}

	logger := zap.NewNop()
	dataset := services.NewBehaviorDatasetService(*dataPath, logger)
	profiles := services.NewProfileService(dataset, nil, logger)
	registry := services.NewImpactModelRegistry(rules)
	engine := services.NewSimulationService(dataset, profiles, registry, logger, 4, 2*time.Second)

	req := models.SimulationRequest{
		EventType:    *eventType,
		EventSubtype: *subtype,
		Parameters:   parameters,
		Persona:      *persona,
		Region:       *region,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := engine.Run(ctx, req)
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}

	var out []byte
	if *pretty {
		out, err = json.MarshalIndent(result, "", "  ")
	} else {
		out, err = json.Marshal(result)
	}
	if err != nil {
		log.Fatalf("failed to encode result: %v", err)
	}
	fmt.Println(string(out))
}

func parseParams(s string) (map[string]float64, error) {
	params := make(map[string]float64)
	if s == "" {
		return params, nil
	}
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("expected name=value, got %q", pair)
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		params[name] = f
	}
	return params, nil
}
