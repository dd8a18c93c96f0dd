package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// TestReadinessReady проверяет агрегацию состояния критичных зависимостей.
func TestReadinessReady(t *testing.T) {
	var mongoOK atomic.Bool
	mongoOK.Store(true)

	checks := []DependencyCheck{
		{
			Name:     "mongodb",
			Critical: true,
			Check: func(ctx context.Context) error {
				if mongoOK.Load() {
					return nil
				}
				return errors.New("недоступна")
			},
		},
		{
			Name:     "neo4j",
			Critical: false,
			Check: func(ctx context.Context) error {
				return errors.New("недоступна")
			},
		},
	}

	rs := NewReadinessService(checks, 20*time.Millisecond, testLogger())
	rs.Start(context.Background())
	defer rs.Stop()

	// Первая проверка выполняется сразу.
	time.Sleep(10 * time.Millisecond)
	if !rs.Ready() {
		t.Error("сервис должен быть ready: критичная зависимость доступна")
	}

	health := rs.Health()
	if !health["mongodb"] {
		t.Error("mongodb должна быть ok")
	}
	if health["neo4j"] {
		t.Error("neo4j должна быть fail")
	}

	// Отказ критичной зависимости.
	mongoOK.Store(false)
	deadline := time.Now().Add(time.Second)
	for rs.Ready() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rs.Ready() {
		t.Error("сервис не должен быть ready при отказе критичной зависимости")
	}
}
