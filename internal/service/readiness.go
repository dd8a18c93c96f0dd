// readiness.go — периодическая проверка зависимостей модуля.
//
// Analysis Module зависит от:
//   - MongoDB — записи заданий (critical)
//   - S3/DynamoDB — blob-хранилище файлов и артефактов (critical)
//   - Neo4j — граф знаний (non-critical: graph-ручки деградируют)
//
// Состояние публикуется в Prometheus (an_dependency_health) и
// используется readiness probe: при отказе критичной зависимости
// /health/ready возвращает 503.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики состояния зависимостей.
var (
	dependencyHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "an_dependency_health",
		Help: "Состояние зависимости (1 = ok, 0 = fail).",
	}, []string{"dependency"})

	dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "an_dependency_check_duration_seconds",
		Help:    "Длительность проверки зависимости.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"dependency"})
)

// DependencyCheck — одна проверяемая зависимость.
type DependencyCheck struct {
	// Name — имя зависимости в метриках и ответе readiness
	Name string
	// Critical — при отказе readiness probe возвращает not ready
	Critical bool
	// Check — функция проверки; nil-ошибка означает ok
	Check func(ctx context.Context) error
}

// ReadinessService — периодическая проверка зависимостей.
type ReadinessService struct {
	checks   []DependencyCheck
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	state  map[string]bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReadinessService создаёт сервис проверки зависимостей.
func NewReadinessService(checks []DependencyCheck, interval time.Duration, logger *slog.Logger) *ReadinessService {
	return &ReadinessService{
		checks:   checks,
		interval: interval,
		timeout:  interval / 2,
		logger:   logger.With(slog.String("component", "readiness")),
		state:    make(map[string]bool, len(checks)),
	}
}

// Start запускает периодические проверки. Первая проверка выполняется
// сразу, чтобы readiness probe не ждала первый интервал.
func (rs *ReadinessService) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go func() {
		defer close(rs.done)
		rs.runChecks(runCtx)

		ticker := time.NewTicker(rs.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				rs.runChecks(runCtx)
			}
		}
	}()

	rs.logger.Info("Мониторинг зависимостей запущен",
		slog.Int("dependencies", len(rs.checks)),
		slog.Duration("interval", rs.interval))
}

// Stop останавливает проверки.
func (rs *ReadinessService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
		<-rs.done
	}
	rs.logger.Info("Мониторинг зависимостей остановлен")
}

func (rs *ReadinessService) runChecks(ctx context.Context) {
	for _, check := range rs.checks {
		checkCtx, cancel := context.WithTimeout(ctx, rs.timeout)
		start := time.Now()
		err := check.Check(checkCtx)
		cancel()

		dependencyLatency.WithLabelValues(check.Name).Observe(time.Since(start).Seconds())

		ok := err == nil
		if ok {
			dependencyHealth.WithLabelValues(check.Name).Set(1)
		} else {
			dependencyHealth.WithLabelValues(check.Name).Set(0)
			rs.logger.Warn("Зависимость недоступна",
				slog.String("dependency", check.Name),
				slog.String("error", err.Error()))
		}

		rs.mu.Lock()
		rs.state[check.Name] = ok
		rs.mu.Unlock()
	}
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (rs *ReadinessService) Health() map[string]bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make(map[string]bool, len(rs.state))
	for k, v := range rs.state {
		out[k] = v
	}
	return out
}

// Ready возвращает true, если все критичные зависимости доступны.
func (rs *ReadinessService) Ready() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	for _, check := range rs.checks {
		if !check.Critical {
			continue
		}
		if !rs.state[check.Name] {
			return false
		}
	}
	return true
}
