package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// saveErrorBlob записывает error.json с описанием ошибки рядом с файлами
// задания. Неудача записи не влияет на фиксацию ошибки в записи задания.
func saveErrorBlob(ctx context.Context, store BlobStore, logger *slog.Logger, prefix string, cause error) {
	blob, err := json.Marshal(map[string]string{
		"error":     cause.Error(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.Warn("Не удалось сериализовать описание ошибки", slog.String("error", err.Error()))
		return
	}
	if _, err := store.SaveContent(ctx, prefix, "error.json", "application/json", bytes.NewReader(blob)); err != nil {
		logger.Warn("Не удалось сохранить описание ошибки в хранилище", slog.String("error", err.Error()))
	}
}
