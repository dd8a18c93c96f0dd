// Пакет model — доменные модели Analysis Module.
// Записи заданий анализа: FileReview, CodebaseReview, Guideline.
// Структуры используются как in-memory представление и как формат
// документов в MongoDB (bson) и в API-ответах (json).
package model

import (
	"time"

	"github.com/arturkryukov/testgen/analysis-module/internal/domain/status"
)

// OutputType — вид результата анализа файлов.
type OutputType string

const (
	// OutputReview — текстовое ревью кода
	OutputReview OutputType = "review"
	// OutputDocumentation — сгенерированная документация
	OutputDocumentation OutputType = "documentation"
	// OutputComments — комментарии к коду
	OutputComments OutputType = "comments"
)

// validOutputTypes — допустимые виды результатов.
var validOutputTypes = map[OutputType]bool{
	OutputReview:        true,
	OutputDocumentation: true,
	OutputComments:      true,
}

// ValidOutputType проверяет, является ли строка допустимым видом результата.
func ValidOutputType(s string) bool {
	return validOutputTypes[OutputType(s)]
}

// allowedModels — закрытый перечень поддерживаемых провайдеров и моделей.
// Ключ — имя провайдера, значение — допустимые идентификаторы моделей.
// Произвольные строки до внешнего анализатора не доходят.
var allowedModels = map[string]map[string]bool{
	"openai": {
		"gpt-4o":      true,
		"gpt-4o-mini": true,
		"gpt-4-turbo": true,
		"o3-mini":     true,
	},
	"anthropic": {
		"claude-3-5-sonnet": true,
		"claude-3-5-haiku":  true,
		"claude-3-opus":     true,
	},
	"gemini": {
		"gemini-1.5-pro":   true,
		"gemini-1.5-flash": true,
	},
	"ollama": {
		"llama3.1":  true,
		"codellama": true,
		"mistral":   true,
	},
}

// ValidProvider проверяет, что провайдер входит в закрытый перечень.
func ValidProvider(provider string) bool {
	_, ok := allowedModels[provider]
	return ok
}

// ValidModel проверяет, что модель допустима для указанного провайдера.
func ValidModel(provider, model string) bool {
	models, ok := allowedModels[provider]
	if !ok {
		return false
	}
	return models[model]
}

// FileDescriptor — дескриптор загруженного файла в составе задания.
// Content хранится только в payload для анализатора; в записи задания
// сохраняются имя и ключ в blob-хранилище.
type FileDescriptor struct {
	// Filename — оригинальное имя файла
	Filename string `bson:"filename" json:"filename"`
	// StorageKey — ключ файла в blob-хранилище (S3)
	StorageKey string `bson:"storage_key,omitempty" json:"storageKey,omitempty"`
}

// FileReviewResults — результаты анализа файлов.
// Присутствуют только поля, запрошенные в selectedOptions.
type FileReviewResults struct {
	Review        string `bson:"review,omitempty" json:"review,omitempty"`
	Documentation string `bson:"documentation,omitempty" json:"documentation,omitempty"`
	Comments      string `bson:"comments,omitempty" json:"comments,omitempty"`
}

// FileReview — запись задания анализа файлов.
type FileReview struct {
	// ID — уникальный идентификатор задания (UUID v4)
	ID string `bson:"_id" json:"reviewId"`
	// Provider — провайдер AI-модели (закрытый перечень)
	Provider string `bson:"provider" json:"provider"`
	// ModelType — идентификатор модели
	ModelType string `bson:"model_type" json:"modelType"`
	// SelectedOptions — запрошенные виды результатов
	SelectedOptions []OutputType `bson:"selected_options" json:"selectedOptions"`
	// MainFiles — основные файлы задания
	MainFiles []FileDescriptor `bson:"main_files" json:"mainFiles"`
	// ComplianceFile — файл требований (опционально)
	ComplianceFile *FileDescriptor `bson:"compliance_file,omitempty" json:"complianceFile,omitempty"`
	// AdditionalFiles — дополнительные файлы контекста (опционально)
	AdditionalFiles []FileDescriptor `bson:"additional_files,omitempty" json:"additionalFiles,omitempty"`
	// Status — статус задания (pending → processing → completed|failed)
	Status status.Status `bson:"status" json:"status"`
	// Results — результаты; заполняется только при status=completed
	Results *FileReviewResults `bson:"results,omitempty" json:"results,omitempty"`
	// ResultFileID — идентификатор записи метаданных результата в blob-хранилище
	ResultFileID string `bson:"result_file_id,omitempty" json:"resultFileId,omitempty"`
	// Error — сообщение об ошибке; заполняется только при status=failed
	Error string `bson:"error,omitempty" json:"error,omitempty"`
	// FailedAt — время фиксации ошибки
	FailedAt *time.Time `bson:"failed_at,omitempty" json:"failedAt,omitempty"`
	// CreatedAt — время создания записи
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	// UpdatedAt — время последнего перехода статуса
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// CodebaseContent — содержательная часть результата анализа кодовой базы.
type CodebaseContent struct {
	CodebaseStructure string `bson:"codebase_structure,omitempty" json:"codebaseStructure,omitempty"`
	KnowledgeGraph    string `bson:"knowledge_graph,omitempty" json:"knowledgeGraph,omitempty"`
}

// CodebaseMetadata — метаданные выполнения анализа кодовой базы.
type CodebaseMetadata struct {
	Provider          string `bson:"provider,omitempty" json:"provider,omitempty"`
	ModelType         string `bson:"model_type,omitempty" json:"model_type,omitempty"`
	AnalysisTimestamp string `bson:"analysis_timestamp,omitempty" json:"analysis_timestamp,omitempty"`
	FilesProcessed    int    `bson:"files_processed,omitempty" json:"files_processed,omitempty"`
	HasComplianceFile bool   `bson:"has_compliance_file,omitempty" json:"has_compliance_file,omitempty"`
}

// CodebaseResult — результат анализа кодовой базы.
type CodebaseResult struct {
	Content  CodebaseContent  `bson:"content" json:"content"`
	Metadata CodebaseMetadata `bson:"metadata,omitempty" json:"metadata,omitempty"`
	// Files — ключи созданных артефактов в blob-хранилище
	Files []string `bson:"files,omitempty" json:"files,omitempty"`
}

// CodebaseReview — запись задания анализа кодовой базы.
type CodebaseReview struct {
	ID        string `bson:"_id" json:"reviewId"`
	Provider  string `bson:"provider" json:"provider"`
	ModelType string `bson:"model_type" json:"modelType"`
	// Files — дескрипторы файлов кодовой базы
	Files []FileDescriptor `bson:"files" json:"files"`
	// ComplianceFile — файл требований (опционально)
	ComplianceFile *FileDescriptor `bson:"compliance_file,omitempty" json:"complianceFile,omitempty"`
	Status         status.Status   `bson:"status" json:"status"`
	// Result — результат; заполняется только при status=completed
	Result *CodebaseResult `bson:"result,omitempty" json:"result,omitempty"`
	// ResultFileID — идентификатор записи метаданных результата в blob-хранилище
	ResultFileID string     `bson:"result_file_id,omitempty" json:"resultFileId,omitempty"`
	Error        string     `bson:"error,omitempty" json:"error,omitempty"`
	FailedAt     *time.Time `bson:"failed_at,omitempty" json:"failedAt,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updatedAt"`
}

// Guideline — запись задания генерации guideline-документа.
type Guideline struct {
	ID        string `bson:"_id" json:"guidelineId"`
	Provider  string `bson:"provider" json:"provider"`
	ModelType string `bson:"model_type" json:"modelType"`
	// Files — дескрипторы исходных файлов
	Files  []FileDescriptor `bson:"files" json:"files"`
	Status status.Status    `bson:"status" json:"status"`
	// Result — текст сгенерированного guideline; только при status=completed
	Result string `bson:"result,omitempty" json:"result,omitempty"`
	// DocFileID — идентификатор записи метаданных сгенерированного документа
	DocFileID string     `bson:"doc_file_id,omitempty" json:"docFileId,omitempty"`
	Error     string     `bson:"error,omitempty" json:"error,omitempty"`
	FailedAt  *time.Time `bson:"failed_at,omitempty" json:"failedAt,omitempty"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updatedAt"`
}

// IsTerminal проверяет, достигло ли задание конечного статуса.
func IsTerminal(s status.Status) bool {
	return s == status.Completed || s == status.Failed
}
