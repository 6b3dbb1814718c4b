// Точка входа портала документов — сервис запросов документов клиентов.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует файловое хранилище, кэш, SSE hub и сервисный слой,
// запускает HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mkosareva/docportal/internal/api/handlers"
	"github.com/mkosareva/docportal/internal/api/middleware"
	"github.com/mkosareva/docportal/internal/config"
	"github.com/mkosareva/docportal/internal/database"
	"github.com/mkosareva/docportal/internal/repository"
	"github.com/mkosareva/docportal/internal/server"
	"github.com/mkosareva/docportal/internal/service"
	"github.com/mkosareva/docportal/internal/storage/custody"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Портал документов запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 5. Файловое хранилище документов
	store, err := custody.New(cfg.StorageRoot)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища",
			slog.String("root", cfg.StorageRoot),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("Хранилище документов готово", slog.String("root", cfg.StorageRoot))

	// 6. Repositories
	requestRepo := repository.NewRequestRepository(pool)
	documentRepo := repository.NewDocumentRepository(pool)
	notificationRepo := repository.NewNotificationRepositoryTx(pool)
	adminRepo := repository.NewAdminRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool)

	// 7. Кэш метаданных запросов
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)

	// 8. SSE hub (реализует service.Publisher)
	events := handlers.NewEventsHandler(cfg.SSEHeartbeat, logger)

	// 9. Services
	notifySvc := service.NewNotifyService(notificationRepo, adminRepo, events, logger)
	lifecycleSvc := service.NewLifecycleService(requestRepo, documentRepo, store, notifySvc, cache, logger)
	settingsSvc := service.NewSettingsService(settingsRepo, logger)

	// 10. Health handler: PostgreSQL + хранилище
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), store)

	// 11. API handler
	api := handlers.NewAPIHandler(
		healthHandler,
		lifecycleSvc,
		notifySvc,
		settingsSvc,
		cfg.MaxRequestFileSize,
		logger,
	)

	// 12. JWT middleware: валидация токенов внешнего Identity Provider.
	// При валидном admin-токене регистрирует администратора в снимке
	// получателей broadcast-уведомлений.
	jwtAuth, err := middleware.NewJWTAuth(cfg.JWTJWKSURL, cfg.JWTIssuer, adminRepo, logger)
	if err != nil {
		logger.Error("Ошибка инициализации JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()

	// 13. HTTP-сервер
	srv := server.New(cfg, logger, api, events, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
