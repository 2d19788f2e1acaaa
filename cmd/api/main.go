// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/clip-forge/internal/auth"
	"github.com/yourusername/clip-forge/internal/config"
	"github.com/yourusername/clip-forge/internal/jobs"
	"github.com/yourusername/clip-forge/internal/klap"
	"github.com/yourusername/clip-forge/internal/ledger"
	"github.com/yourusername/clip-forge/internal/notify"
	"github.com/yourusername/clip-forge/internal/shorts"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Redisクライアントは起動時に生成し、終了時に明示的に閉じる
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse redis url: %v", err)
	}
	redisClient := redis.NewClient(opt)

	store := jobs.NewStore(redisClient, time.Duration(cfg.JobExpireHours)*time.Hour)
	tokenLedger := ledger.New(redisClient)
	converter := klap.NewClient(cfg.KlapAPIURL, cfg.KlapAPIKey, cfg.KlapRateRPS)

	service := shorts.NewService(store, tokenLedger, converter, shorts.Options{
		TaskPoll: shorts.PollPolicy{
			Attempts: cfg.TaskPollAttempts,
			Interval: time.Duration(cfg.TaskPollIntervalMS) * time.Millisecond,
		},
		ExportPoll: shorts.PollPolicy{
			Attempts: cfg.ExportPollAttempts,
			Interval: time.Duration(cfg.ExportPollIntervalMS) * time.Millisecond,
		},
	}, log.Default())

	manager, err := setupJobs(cfg, store, service)
	if err != nil {
		log.Fatalf("Failed to setup jobs: %v", err)
	}
	service.SetScheduler(&convertJobScheduler{manager: manager})
	service.SetResolver(auth.NewChatLinks(redisClient))
	if cfg.TelegramBotToken != "" {
		service.SetNotifier(notify.NewTelegram(cfg.TelegramBotToken, log.Default()))
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		auth.HeaderUserID,
		auth.HeaderChatID,
	}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, cfg, service, store, tokenLedger)

	// ワーカーと起動時スイープ（ディスパッチに失敗して pending のまま残ったジョブの再投入）
	manager.StartWorkers()
	go func() {
		time.Sleep(10 * time.Second)
		if err := manager.RequeuePending(context.Background(), time.Minute); err != nil {
			log.Printf("pending sweep failed: %v", err)
		}
	}()

	// サーバーの起動
	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// シグナルを受けたらワーカー・サーバー・Redisの順で閉じる
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown job manager: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server: %v", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("Failed to close redis client: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "clip-forge-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, service *shorts.Service, store *jobs.Store, tokenLedger *ledger.Ledger) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	api.Use(auth.Identity())
	{
		shortsRoutes := api.Group("/shorts")
		{
			shortsRoutes.POST("/convert", shorts.ConvertHandler(service, shorts.HandlerOptions{
				PublicBaseURL: cfg.PublicBaseURL,
			}))
			shortsRoutes.GET("/status/:id", shorts.StatusHandler(store))
			shortsRoutes.GET("/balance", shorts.BalanceHandler(tokenLedger))
		}
	}
}
