package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"face-identification/internal/api/handlers"
	"face-identification/internal/api/middleware"
	"face-identification/internal/api/websocket"
	"face-identification/internal/config"
	"face-identification/internal/observability/metrics"
	"face-identification/internal/repository"
	"face-identification/internal/service/cache"
	"face-identification/internal/service/storage"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP сервер",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	printBanner()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Println("✅ Конфигурация загружена")
	gin.SetMode(cfg.Server.GinMode)

	// Инициализируем базу данных
	db, err := initDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("❌ ошибка подключения к БД: %w", err)
	}
	defer db.Close()
	log.Println("✅ База данных подключена")

	repo := repository.NewRepository(db)
	if err := repo.InitSchema(); err != nil {
		return err
	}
	log.Println("✅ Схема БД готова")

	// Кэш: Redis, при недоступности - память процесса
	cacheService := cache.NewServiceWithFallback(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer cacheService.Close()
	log.Printf("✅ Кэш: %s", cacheService.Backend())

	storageService, err := storage.NewService(cfg.Storage.KnowledgeDir, cfg.Storage.TempDir)
	if err != nil {
		return fmt.Errorf("❌ ошибка инициализации storage: %w", err)
	}
	log.Println("✅ Storage сервис инициализирован")

	// Метрики
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recognitionMetrics, err := metrics.NewRecognitionMetrics(registry)
	if err != nil {
		return err
	}

	recognizer, cleanup, err := buildRecognizer(cfg, storageService)
	if err != nil {
		return err
	}
	defer cleanup()
	recognizer.SetObserver(recognitionMetrics)

	// Корпус, накопленный до запуска, сразу доступен для идентификации
	if cfg.Recognition.RebuildOnStart {
		if _, err := recognizer.Rebuild(); err != nil {
			log.Printf("⚠️  Стартовая пересборка не удалась, сервис работает без модели: %v", err)
		}
	}

	wsManager := websocket.NewManager()
	go wsManager.Run()
	defer wsManager.Stop()
	log.Println("✅ WebSocket manager запущен")

	handler := handlers.NewHandler(repo, storageService, recognizer, cacheService, wsManager)
	router := setupRouter(handler, wsManager, recognitionMetrics, registry)

	srv := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Println("🎉 Сервер успешно запущен!")
	log.Printf("📡 API: http://localhost:%s/api", cfg.Server.Port)
	log.Printf("🔌 WebSocket: ws://localhost:%s/ws", cfg.Server.Port)
	log.Printf("📈 Метрики: http://localhost:%s/metrics", cfg.Server.Port)
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("❌ ошибка запуска сервера: %w", err)
		}
	case <-ctx.Done():
		log.Println("🛑 Останавливаем сервер...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ошибка остановки сервера: %w", err)
		}
	}

	return nil
}

// initDatabase инициализирует подключение к базе данных
func initDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.GetDSN())
	if err != nil {
		return nil, err
	}

	// Проверяем подключение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Настраиваем connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	return db, nil
}

// setupRouter настраивает роутер с middleware и endpoints
func setupRouter(handler *handlers.Handler, wsManager *websocket.Manager, recorder middleware.RequestRecorder, registry *prometheus.Registry) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(recorder))
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})))

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Face identification API. POST /api/add-face, POST /api/detect-face")
	})

	// WebSocket endpoint
	wsHandler := websocket.NewHandler(wsManager)
	router.GET("/ws", wsHandler.HandleWebSocket)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/health", handler.HandleHealth)

	// API группа
	api := router.Group("/api")
	{
		// Обучение и идентификация
		api.POST("/add-face", handler.HandleAddFace)
		api.POST("/detect-face", handler.HandleDetectFace)

		// Пользователи
		api.GET("/users", handler.HandleGetUsers)
		api.GET("/users/:id", handler.HandleGetUser)

		// Журнал и статистика
		api.GET("/detections", handler.HandleGetDetections)
		api.GET("/stats", handler.HandleGetStats)

		// Модель
		api.GET("/model", handler.HandleModelStatus)
		api.POST("/model/rebuild", handler.HandleModelRebuild)
	}

	return router
}
