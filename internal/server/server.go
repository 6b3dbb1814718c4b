// Пакет server — HTTP-сервер портала документов с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkosareva/docportal/internal/api/handlers"
	"github.com/mkosareva/docportal/internal/api/middleware"
	"github.com/mkosareva/docportal/internal/config"
)

// Server — HTTP-сервер портала документов.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (может быть nil для тестирования без auth).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	api *handlers.APIHandler,
	events *handlers.EventsHandler,
	jwtAuth *middleware.JWTAuth,
) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Публичные endpoints: health и metrics проверяются Kubernetes
	// напрямую, без API Gateway.
	router.Get("/health/live", api.HealthLive)
	router.Get("/health/ready", api.HealthReady)
	router.Get("/metrics", api.GetMetrics)

	// API под JWT
	router.Route("/api/v1", func(r chi.Router) {
		if jwtAuth != nil {
			r.Use(jwtAuth.Middleware())
		}

		// Запросы документов
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", api.CreateRequest)
			r.Get("/", api.ListRequests)
			r.Get("/{id}", api.GetRequest)
			r.Post("/{id}/attachment", api.UploadAttachment)
			r.Get("/{id}/download", api.DownloadAttachment)

			// Действия администратора
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin())
				r.Post("/{id}/approve", api.ApproveRequest)
				r.Post("/{id}/reject", api.RejectRequest)
				r.Patch("/{id}/status", api.SetRequestStatus)
			})
		})

		// Одобренные документы
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", api.ListDocuments)
			r.Get("/{id}/download", api.DownloadDocument)
		})

		// Уведомления администраторов
		r.Route("/notifications", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.Get("/", api.ListNotifications)
			r.Post("/{id}/read", api.MarkNotificationRead)
			r.Post("/read-all", api.MarkAllNotificationsRead)
		})

		// SSE поток уведомлений
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.Get("/events/notifications", events.HandleNotifications)
		})

		// Настройки пользователя
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", api.ListSettings)
			r.Put("/{key}", api.SetSetting)
			r.Delete("/{key}", api.DeleteSetting)
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
