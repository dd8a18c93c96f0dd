package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arturkryukov/testgen/analysis-module/internal/analyzer"
	"github.com/arturkryukov/testgen/analysis-module/internal/domain/model"
	"github.com/arturkryukov/testgen/analysis-module/internal/domain/status"
	"github.com/arturkryukov/testgen/analysis-module/internal/storage/filestore"
)

// fakeBlobStore — blob-хранилище в памяти. Идентификаторы записей
// метаданных детерминированы: "meta-" + ключ объекта.
type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string]string
	ids     map[string]string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects: make(map[string]string),
		ids:     make(map[string]string),
	}
}

func (f *fakeBlobStore) SaveContent(_ context.Context, subfolder, filename, _ string, content io.Reader) (*filestore.MetaItem, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	key := strings.TrimPrefix(subfolder+"/"+filename, "/")
	id := "meta-" + key
	f.mu.Lock()
	f.objects[key] = string(data)
	f.ids[id] = key
	f.mu.Unlock()
	return &filestore.MetaItem{ID: id, S3Key: key, Filename: filename}, nil
}

func (f *fakeBlobStore) GetDownloadURL(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.ids[id]
	if !ok {
		return "", filestore.ErrNotFound
	}
	return "https://example.com/" + key, nil
}

func (f *fakeBlobStore) GetDownloadURLForKey(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return "", filestore.ErrNotFound
	}
	return "https://example.com/" + key, nil
}

func (f *fakeBlobStore) ReadText(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return "", filestore.ErrNotFound
	}
	return data, nil
}

func (f *fakeBlobStore) ListByPrefix(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// fakeFileReviewRepo — репозиторий записей в памяти.
type fakeFileReviewRepo struct {
	mu      sync.Mutex
	records map[string]*model.FileReview
}

func newFakeFileReviewRepo() *fakeFileReviewRepo {
	return &fakeFileReviewRepo{records: make(map[string]*model.FileReview)}
}

func (f *fakeFileReviewRepo) Create(_ context.Context, review *model.FileReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	review.Status = status.Pending
	cp := *review
	f.records[review.ID] = &cp
	return nil
}

func (f *fakeFileReviewRepo) GetByID(_ context.Context, id string) (*model.FileReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, errors.New("запись не найдена")
	}
	cp := *r
	return &cp, nil
}

func (f *fakeFileReviewRepo) GetMostRecent(_ context.Context) (*model.FileReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.FileReview
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

func (f *fakeFileReviewRepo) MarkProcessing(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id].Status = status.Processing
	return nil
}

func (f *fakeFileReviewRepo) Complete(_ context.Context, id string, results *model.FileReviewResults, resultFileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.records[id]
	r.Status = status.Completed
	r.Results = results
	r.ResultFileID = resultFileID
	return nil
}

func (f *fakeFileReviewRepo) Fail(_ context.Context, id string, _ status.Status, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.records[id]
	r.Status = status.Failed
	r.Error = message
	now := time.Now().UTC()
	r.FailedAt = &now
	return nil
}

// fakeInvoker — анализатор с заранее заданным результатом.
// Запоминает режим последнего вызова (file или stdio).
type fakeInvoker struct {
	mu     sync.Mutex
	mode   string
	result json.RawMessage
	err    error
}

func (f *fakeInvoker) InvokeFile(_ context.Context, _ any, _ ...string) (json.RawMessage, error) {
	f.setMode("file")
	return f.result, f.err
}

func (f *fakeInvoker) InvokeStdio(_ context.Context, _ any, _ ...string) (json.RawMessage, error) {
	f.setMode("stdio")
	return f.result, f.err
}

func (f *fakeInvoker) setMode(mode string) {
	f.mu.Lock()
	f.mode = mode
	f.mu.Unlock()
}

func (f *fakeInvoker) lastMode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func newReviewFileService(repo FileReviewRepo, store BlobStore, inv AnalyzerInvoker, runner *TaskRunner) *ReviewFileService {
	return NewReviewFileService(repo, store, inv, runner, testLogger())
}

// TestSubmitValidation проверяет отклонение некорректных заданий.
func TestSubmitValidation(t *testing.T) {
	runner := NewTaskRunner(testLogger())
	svc := newReviewFileService(newFakeFileReviewRepo(), newFakeBlobStore(), &fakeInvoker{}, runner)

	cases := []struct {
		name    string
		req     SubmitFileReviewRequest
		wantErr error
	}{
		{
			name:    "неизвестный провайдер",
			req:     SubmitFileReviewRequest{Provider: "azure", ModelType: "gpt-4o", MainFiles: []FileUpload{{Filename: "a.py"}}},
			wantErr: ErrBadProvider,
		},
		{
			name:    "чужая модель",
			req:     SubmitFileReviewRequest{Provider: "openai", ModelType: "claude-3-opus", MainFiles: []FileUpload{{Filename: "a.py"}}},
			wantErr: ErrBadModel,
		},
		{
			name:    "без файлов",
			req:     SubmitFileReviewRequest{Provider: "openai", ModelType: "gpt-4o"},
			wantErr: ErrNoFiles,
		},
		{
			name: "неизвестный вид результата",
			req: SubmitFileReviewRequest{
				Provider: "openai", ModelType: "gpt-4o",
				SelectedOptions: []string{"summary"},
				MainFiles:       []FileUpload{{Filename: "a.py"}},
			},
			wantErr: ErrBadOption,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), c.req)
			if !errors.Is(err, c.wantErr) {
				t.Errorf("ожидалась ошибка %v, получено: %v", c.wantErr, err)
			}
		})
	}
}

// waitStatus опрашивает запись до достижения конечного статуса.
func waitStatus(t *testing.T, repo FileReviewRepo, id string) *model.FileReview {
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

// TestSubmitPipeline проверяет полный конвейер: staging файлов,
// фоновый анализ, фиксация результата и артефакта.
func TestSubmitPipeline(t *testing.T) {
	repo := newFakeFileReviewRepo()
	store := newFakeBlobStore()
	inv := &fakeInvoker{result: json.RawMessage(`{"status":"completed","results":{"review":"отличный код"}}`)}
	runner := NewTaskRunner(testLogger())
	svc := newReviewFileService(repo, store, inv, runner)

	review, err := svc.Submit(context.Background(), SubmitFileReviewRequest{
		Provider:        "openai",
		ModelType:       "gpt-4o",
		SelectedOptions: []string{"review"},
		MainFiles:       []FileUpload{{Filename: "main.py", Content: []byte("print(1)")}},
		ComplianceFile:  &FileUpload{Filename: "rules.md", Content: []byte("# rules")},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if review.Status != status.Pending {
		t.Errorf("статус после submit = %s, ожидался pending", review.Status)
	}
	if len(review.MainFiles) != 1 || review.MainFiles[0].StorageKey == "" {
		t.Errorf("main files не сохранены: %+v", review.MainFiles)
	}
	if review.ComplianceFile == nil || review.ComplianceFile.StorageKey == "" {
		t.Error("compliance file не сохранён")
	}

	got := waitStatus(t, repo, review.ID)
	if got.Status != status.Completed {
		t.Fatalf("статус = %s (error=%q), ожидался completed", got.Status, got.Error)
	}
	if got.Results == nil || got.Results.Review != "отличный код" {
		t.Errorf("результаты: %+v", got.Results)
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

// TestSubmitPipelineFailure проверяет фиксацию ошибки анализатора.
func TestSubmitPipelineFailure(t *testing.T) {
	repo := newFakeFileReviewRepo()
	inv := &fakeInvoker{err: &analyzer.ReportedError{Message: "модель недоступна"}}
	runner := NewTaskRunner(testLogger())
	svc := newReviewFileService(repo, newFakeBlobStore(), inv, runner)

	review, err := svc.Submit(context.Background(), SubmitFileReviewRequest{
		Provider:  "ollama",
		ModelType: "llama3.1",
		MainFiles: []FileUpload{{Filename: "main.py", Content: []byte("x")}},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := waitStatus(t, repo, review.ID)
	if got.Status != status.Failed {
		t.Fatalf("статус = %s, ожидался failed", got.Status)
	}
	if !strings.Contains(got.Error, "модель недоступна") {
		t.Errorf("error = %q", got.Error)
	}
	if got.Results != nil {
		t.Error("у ошибочной записи не должно быть результатов")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = runner.Shutdown(ctx)
}

// TestSubmitDefaultOption проверяет, что при пустом selectedOptions
// запрашивается review.
func TestSubmitDefaultOption(t *testing.T) {
	repo := newFakeFileReviewRepo()
	inv := &fakeInvoker{result: json.RawMessage(`{"results":{"review":"ok"}}`)}
	runner := NewTaskRunner(testLogger())
	svc := newReviewFileService(repo, newFakeBlobStore(), inv, runner)

	review, err := svc.Submit(context.Background(), SubmitFileReviewRequest{
		Provider:  "openai",
		ModelType: "gpt-4o",
		MainFiles: []FileUpload{{Filename: "a.py", Content: []byte("x")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(review.SelectedOptions) != 1 || review.SelectedOptions[0] != model.OutputReview {
		t.Errorf("options = %v, ожидался [review]", review.SelectedOptions)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = runner.Shutdown(ctx)
}
