package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arturkryukov/testgen/analysis-module/internal/domain/model"
	"github.com/arturkryukov/testgen/analysis-module/internal/domain/status"
)

// fakeCodebaseRepo — репозиторий записей в памяти.
type fakeCodebaseRepo struct {
	mu      sync.Mutex
	records map[string]*model.CodebaseReview
}

func newFakeCodebaseRepo() *fakeCodebaseRepo {
	return &fakeCodebaseRepo{records: make(map[string]*model.CodebaseReview)}
}

func (f *fakeCodebaseRepo) Create(_ context.Context, review *model.CodebaseReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	review.Status = status.Pending
	cp := *review
	f.records[review.ID] = &cp
	return nil
}

func (f *fakeCodebaseRepo) GetByID(_ context.Context, id string) (*model.CodebaseReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, errors.New("запись не найдена")
	}
	cp := *r
	return &cp, nil
}

func (f *fakeCodebaseRepo) GetMostRecent(_ context.Context) (*model.CodebaseReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.CodebaseReview
	for _, r := range f.records {
		if r.Status != status.Completed {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, errors.New("запись не найдена")
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeCodebaseRepo) MarkProcessing(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id].Status = status.Processing
	return nil
}

func (f *fakeCodebaseRepo) Complete(_ context.Context, id string, result *model.CodebaseResult, resultFileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.records[id]
	r.Status = status.Completed
	r.Result = result
	r.ResultFileID = resultFileID
	return nil
}

func (f *fakeCodebaseRepo) Fail(_ context.Context, id string, _ status.Status, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.records[id]
	r.Status = status.Failed
	r.Error = message
	now := time.Now().UTC()
	r.FailedAt = &now
	return nil
}

// waitCodebaseStatus опрашивает запись до достижения конечного статуса.
func waitCodebaseStatus(t *testing.T, repo CodebaseRepo, id string) *model.CodebaseReview {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r, err := repo.GetByID(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if model.IsTerminal(r.Status) {
			return r
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("запись не достигла конечного статуса")
	return nil
}

// TestCodebasePipeline проверяет конвейер анализа кодовой базы:
// payload уходит анализатору через stdin, артефакты и результат
// сохраняются, запись завершается со ссылкой на результат.
func TestCodebasePipeline(t *testing.T) {
	repo := newFakeCodebaseRepo()
	store := newFakeBlobStore()
	inv := &fakeInvoker{result: json.RawMessage(
		`{"result":{"content":{"codebaseStructure":"# Структура","knowledgeGraph":"{\"nodes\":[]}"}}}`)}
	runner := NewTaskRunner(testLogger())
	svc := NewCodebaseService(repo, store, inv, runner, testLogger())

	review, err := svc.Submit(context.Background(), SubmitCodebaseRequest{
		Provider:  "openai",
		ModelType: "gpt-4o",
		Files:     []FileUpload{{Filename: "main.py", Content: []byte("print(1)")}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	got := waitCodebaseStatus(t, repo, review.ID)
	if got.Status != status.Completed {
		t.Fatalf("статус = %s (error=%q), ожидался completed", got.Status, got.Error)
	}
	if inv.lastMode() != "stdio" {
		t.Errorf("режим вызова анализатора = %q, ожидался stdio", inv.lastMode())
	}
	if got.Result == nil || len(got.Result.Files) != 2 {
		t.Fatalf("артефакты не сохранены: %+v", got.Result)
	}
	if got.ResultFileID == "" {
		t.Error("результат не сохранён в blob-хранилище")
	}
	if _, err := store.GetDownloadURL(context.Background(), got.ResultFileID); err != nil {
		t.Errorf("blob результата не разрешается по идентификатору: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = runner.Shutdown(ctx)
}
