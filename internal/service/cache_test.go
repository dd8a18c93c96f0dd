package service

import (
	"testing"
	"time"
)

// TestCacheService_GetSet проверяет базовые операции Get/Set.
func TestCacheService_GetSet(t *testing.T) {
	cache := NewCacheService(100, 5*time.Minute)

	// Cache miss
	_, ok := cache.Get("reviews/job-1/result.md")
	if ok {
		t.Fatal("ожидался cache miss для нового ключа")
	}

	// Set + cache hit
	cache.Set("reviews/job-1/result.md", "https://example.com/signed-1")
	got, ok := cache.Get("reviews/job-1/result.md")
	if !ok {
		t.Fatal("ожидался cache hit после Set")
	}
	if got != "https://example.com/signed-1" {
		t.Errorf("url = %q", got)
	}
}

// TestCacheService_Delete проверяет удаление из кэша (инвалидация).
func TestCacheService_Delete(t *testing.T) {
	cache := NewCacheService(100, 5*time.Minute)

	cache.Set("delete-me", "https://example.com/x")

	// Проверяем что запись есть
	_, ok := cache.Get("delete-me")
	if !ok {
		t.Fatal("ожидался cache hit перед удалением")
	}

	// Удаляем
	cache.Delete("delete-me")

	// Проверяем что записи больше нет
	_, ok = cache.Get("delete-me")
	if ok {
		t.Fatal("ожидался cache miss после Delete")
	}
}

// TestCacheService_TTLExpiration проверяет автоматическое истечение TTL.
func TestCacheService_TTLExpiration(t *testing.T) {
	// Короткий TTL = 50ms для теста
	cache := NewCacheService(100, 50*time.Millisecond)

	cache.Set("ttl-test", "https://example.com/ttl")

	// Сразу после Set — должен быть hit
	_, ok := cache.Get("ttl-test")
	if !ok {
		t.Fatal("ожидался cache hit сразу после Set")
	}

	// Ждём истечения TTL
	time.Sleep(100 * time.Millisecond)

	// После истечения TTL — должен быть miss
	_, ok = cache.Get("ttl-test")
	if ok {
		t.Fatal("ожидался cache miss после истечения TTL")
	}
}

// TestCacheService_Eviction проверяет вытеснение при превышении maxSize.
func TestCacheService_Eviction(t *testing.T) {
	// Кэш на 2 записи
	cache := NewCacheService(2, 5*time.Minute)

	cache.Set("k1", "u1")
	cache.Set("k2", "u2")

	// Обе записи в кэше
	if _, ok := cache.Get("k1"); !ok {
		t.Fatal("ожидался cache hit для k1")
	}
	if _, ok := cache.Get("k2"); !ok {
		t.Fatal("ожидался cache hit для k2")
	}

	// Добавляем третью — k1 должна быть вытеснена (LRU: последний Get был для k2)
	cache.Set("k3", "u3")

	// k3 должна быть в кэше
	if _, ok := cache.Get("k3"); !ok {
		t.Fatal("ожидался cache hit для k3")
	}
}

// TestCacheService_Update проверяет обновление записи в кэше.
func TestCacheService_Update(t *testing.T) {
	cache := NewCacheService(100, 5*time.Minute)

	cache.Set("update-test", "https://example.com/old")
	cache.Set("update-test", "https://example.com/new")

	got, ok := cache.Get("update-test")
	if !ok {
		t.Fatal("ожидался cache hit после обновления")
	}
	if got != "https://example.com/new" {
		t.Errorf("url = %q, ожидался обновлённый", got)
	}
}
