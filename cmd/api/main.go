package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkhromov/urlmapper/internal/config"
	"github.com/dkhromov/urlmapper/internal/handler"
	"github.com/dkhromov/urlmapper/internal/middleware"
	"github.com/dkhromov/urlmapper/internal/repository"
	"github.com/dkhromov/urlmapper/internal/service"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига: отсутствие обязательных значений валит процесс сразу
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	if err := db.Migrate(context.Background()); err != nil {
		logger.Fatal("Failed to migrate schema", zap.Error(err))
	}

	// Подключение к Redis (кэш геолокации)
	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Инициализация репозиториев
	mappingRepo := repository.NewMappingRepository(db)
	clickRepo := repository.NewClickRepository(db)
	geoCache := repository.NewGeoCacheRepository(redis)

	// Инициализация сервисов
	generator := service.NewCodeGenerator(nil)
	mappingService := service.NewMappingService(mappingRepo, clickRepo, generator, logger)
	geoResolver := service.NewGeoResolver(cfg.Geo, geoCache, logger)

	// Инициализация процессора кликов (Worker Pool)
	clickProcessor := service.NewClickProcessor(clickRepo, mappingRepo, geoResolver, logger, service.ClickProcessorOptions{
		Workers:    cfg.Click.Workers,
		BufferSize: cfg.Click.BufferSize,
	})
	clickProcessor.Start()
	defer clickProcessor.Stop()

	// Идентификация владельцев по API-ключам
	identity := middleware.NewIdentity(middleware.IdentityConfig{Keys: cfg.Auth.APIKeys})
	if len(cfg.Auth.APIKeys) > 0 {
		logger.Info("API key identities configured", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	}

	// Настройка роутера
	router := handler.NewRouter(mappingService, clickProcessor, identity, cfg.App.BaseURL, logger)

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
