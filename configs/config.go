package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the application configuration
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	APIKey      string `env:"API_KEY"`

	// データソース
	DataPath          string `env:"DATA_PATH" envDefault:"./data"`
	BehaviorFile      string `env:"BEHAVIOR_FILE" envDefault:"behavior_twin_monthly.jsonl"`
	ImpactRulesFile   string `env:"IMPACT_RULES_FILE"` // 未指定の場合は組み込みデフォルト
	SimulationWorkers int    `env:"SIMULATION_WORKERS" envDefault:"4"`
	SegmentTimeoutMS  int    `env:"SEGMENT_TIMEOUT_MS" envDefault:"2000"`

	// Redis（任意。プロファイルスナップショットのキャッシュ用）
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SegmentTimeout は1セグメントあたりの計算予算を返します。
func (c *Config) SegmentTimeout() time.Duration {
	return time.Duration(c.SegmentTimeoutMS) * time.Millisecond
}
