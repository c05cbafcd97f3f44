package main

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"time"

	config "cdp-twin-api/configs"
	"cdp-twin-api/pkg/handlers"
	"cdp-twin-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Environment)
	defer logger.Sync()

	// 影響ルール（YAMLで上書き可能、未指定は組み込みデフォルト）
	rules := config.DefaultImpactRules()
	if cfg.ImpactRulesFile != "" {
		rules, err = config.LoadImpactRules(cfg.ImpactRulesFile)
		if err != nil {
			logger.Fatal("failed to load impact rules", zap.String("path", cfg.ImpactRulesFile), zap.Error(err))
		}
	}

	// サービスの初期化
	dataFile := filepath.Join(cfg.DataPath, cfg.BehaviorFile)
	datasetService := services.NewBehaviorDatasetService(dataFile, logger)
	profileCache := services.NewProfileCache(newRedisClient(cfg, logger), time.Hour, logger)
	profileService := services.NewProfileService(datasetService, profileCache, logger)
	registry := services.NewImpactModelRegistry(rules)
	simulationService := services.NewSimulationService(
		datasetService,
		profileService,
		registry,
		logger,
		cfg.SimulationWorkers,
		cfg.SegmentTimeout(),
	)
	monitoringService := services.NewMonitoringService()

	// ハンドラーの初期化
	behaviorHandler := handlers.NewBehaviorHandler(datasetService)
	simulationHandler := handlers.NewSimulationHandler(simulationService, monitoringService)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)
	adminHandler := handlers.NewAdminHandler(cfg, datasetService, profileService, monitoringService)

	// Ginルーターの初期化
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// ミドルウェアの登録
	r.Use(monitoringService.LoggingMiddleware())
	r.Use(cors.Default())

	// 認証ミドルウェア
	authMiddleware := func(apiKey string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if apiKey == "" {
				c.Next()
				return
			}
			providedKey := c.GetHeader("X-API-KEY")
			if providedKey != apiKey {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			c.Next()
		}
	}

	// ヘルスチェックエンドポイント
	r.GET("/health", handlers.HealthCheck)

	// APIバージョン1のルートグループ
	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(cfg.APIKey))
	{
		// 行動データAPI
		behavior := v1.Group("/behavior")
		{
			behavior.GET("", behaviorHandler.GetBehaviorData)
			behavior.GET("/summary", behaviorHandler.GetBehaviorSummary)
		}

		// what-if シミュレーションAPI
		simulation := v1.Group("/simulation")
		{
			simulation.GET("", simulationHandler.GetSimulationParameters)
			simulation.POST("/simulate", simulationHandler.RunSimulation)
		}

		// モニタリングAPI
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
			monitoring.GET("/dashboard", monitoringHandler.GetDashboard)
		}

		// 管理者向けAPI
		admin := v1.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/reload", adminHandler.ReloadDataset)
		}
	}

	logger.Info("Starting CDP Twin API server", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func newLogger(environment string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return logger
}

// newRedisClient はRedisが設定されていれば接続確認済みのクライアントを返します。
// 未設定または接続不可の場合はnil（キャッシュなしで動作継続）。
func newRedisClient(cfg *config.Config, logger *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, profile cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		client.Close()
		return nil
	}
	logger.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	return client
}
