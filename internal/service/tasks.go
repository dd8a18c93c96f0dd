package service

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики фоновых задач.
var (
	tasksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "an_background_tasks_active",
		Help: "Количество выполняющихся фоновых задач анализа.",
	})
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "an_background_tasks_total",
		Help: "Общее количество фоновых задач анализа по имени и исходу.",
	}, []string{"task", "outcome"})
)

// TaskRunner — учёт фоновых задач анализа.
// Задачи запускаются в отдельных горутинах с собственным контекстом,
// не привязанным к HTTP-запросу, и дожидаются завершения при
// остановке сервиса (graceful shutdown).
type TaskRunner struct {
	logger *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewTaskRunner создаёт TaskRunner.
func NewTaskRunner(logger *slog.Logger) *TaskRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskRunner{
		logger: logger.With(slog.String("component", "tasks")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go запускает фоновую задачу. Возвращает false, если runner уже
// останавливается и новые задачи не принимаются.
// Паника внутри задачи логируется и не роняет процесс.
func (r *TaskRunner) Go(name string, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	tasksActive.Inc()
	go func() {
		defer r.wg.Done()
		defer tasksActive.Dec()
		defer func() {
			if rec := recover(); rec != nil {
				tasksTotal.WithLabelValues(name, "panic").Inc()
				r.logger.Error("Паника в фоновой задаче",
					slog.String("task", name),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())))
			}
		}()

		r.logger.Debug("Фоновая задача запущена", slog.String("task", name))
		fn(r.ctx)
		tasksTotal.WithLabelValues(name, "done").Inc()
	}()
	return true
}

// Shutdown прекращает приём новых задач и дожидается завершения
// запущенных. Если ctx истекает раньше, выполняющиеся задачи
// получают отмену через свой контекст.
func (r *TaskRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Все фоновые задачи завершены")
		return nil
	case <-ctx.Done():
		// Отменяем контекст задач и ждём их выхода.
		r.cancel()
		<-done
		r.logger.Warn("Фоновые задачи прерваны по таймауту остановки")
		return ctx.Err()
	}
}
