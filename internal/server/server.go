// Пакет server — HTTP-сервер Analysis Module с graceful shutdown.
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/arturkryukov/testgen/analysis-module/internal/api/handlers"
	"github.com/arturkryukov/testgen/analysis-module/internal/config"
)

// Server — HTTP-сервер Analysis Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Guards — авторизационные middleware API-маршрутов.
// Read прикрывает чтение (GET), Write — приём заданий (POST).
// nil-поле означает, что группа не требует авторизации.
type Guards struct {
	Read  func(http.Handler) http.Handler
	Write func(http.Handler) http.Handler
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// middlewares — дополнительные middleware (metrics, logging, JWT),
// добавляются в порядке переданного среза.
func New(cfg *config.Config, logger *slog.Logger, h *handlers.APIHandler, guards Guards, middlewares ...func(http.Handler) http.Handler) *Server {
	router := chi.NewRouter()

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	for _, mw := range middlewares {
		router.Use(mw)
	}

	registerRoutes(router, h, guards)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// registerRoutes привязывает обработчики к маршрутам API.
// Приём заданий (POST) прикрывается guards.Write, чтение — guards.Read.
func registerRoutes(router chi.Router, h *handlers.APIHandler, guards Guards) {
	// Служебные endpoints — без авторизации
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(w chi.Router) {
			if guards.Write != nil {
				w.Use(guards.Write)
			}
			w.Post("/reviews/files", h.SubmitFileReview)
			w.Post("/reviews/codebase", h.SubmitCodebaseReview)
			w.Post("/guidelines", h.SubmitGuideline)
		})

		r.Group(func(g chi.Router) {
			if guards.Read != nil {
				g.Use(guards.Read)
			}

			// Анализ файлов
			g.Get("/reviews/files/latest", h.GetLatestFileReview)
			g.Get("/reviews/files/{reviewId}", h.GetFileReview)

			// Анализ кодовой базы
			g.Get("/reviews/codebase/latest", h.GetLatestCodebaseReview)
			g.Get("/reviews/codebase/{reviewId}", h.GetCodebaseReview)

			// Guidelines
			g.Get("/guidelines/latest", h.GetLatestGuideline)
			g.Get("/guidelines/{guidelineId}", h.GetGuideline)
			g.Get("/guidelines/{guidelineId}/download", h.DownloadGuideline)

			// Артефакты анализа
			g.Get("/outputs", h.ListOutputs)
			g.Get("/outputs/download", h.DownloadOutput)

			// Граф знаний
			g.Get("/graph/node-relationships", h.GetNodeRelationships)
			g.Get("/graph/dump", h.DumpGraph)
		})
	})
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
