// Пакет analyzer — запуск внешнего процесса анализа кода.
// Анализатор — отдельный скрипт (python), получающий задание в JSON
// и возвращающий JSON-результат. Поддерживаются два режима обмена:
// через файлы (--input/--output) и через stdin/stdout.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Config — конфигурация запуска анализатора.
type Config struct {
	// Interpreter — путь к интерпретатору (python3)
	Interpreter string
	// ScriptPath — путь к скрипту анализатора
	ScriptPath string
	// Timeout — максимальное время выполнения одного анализа
	Timeout time.Duration
	// WorkDir — базовый каталог для временных файлов обмена
	WorkDir string
}

// Invoker — обёртка над процессом анализатора.
type Invoker struct {
	cfg    Config
	logger *slog.Logger
}

// maxStderr — сколько байт stderr сохраняется в ошибке.
const maxStderr = 4096

// NewInvoker создаёт Invoker.
func NewInvoker(cfg Config, logger *slog.Logger) *Invoker {
	return &Invoker{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "analyzer")),
	}
}

// InvokeFile запускает анализатор в файловом режиме: payload записывается
// во временный input-файл, результат читается из output-файла.
// Временный каталог удаляется после завершения независимо от исхода.
func (inv *Invoker) InvokeFile(ctx context.Context, payload any, extraArgs ...string) (json.RawMessage, error) {
	workDir, err := os.MkdirTemp(inv.cfg.WorkDir, "analysis-*")
	if err != nil {
		return nil, fmt.Errorf("создание рабочего каталога: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			inv.logger.Warn("Не удалось удалить рабочий каталог",
				slog.String("dir", workDir), slog.String("error", rmErr.Error()))
		}
	}()

	inputPath := filepath.Join(workDir, "input.json")
	outputPath := filepath.Join(workDir, "output.json")

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация задания: %w", err)
	}
	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("запись input-файла: %w", err)
	}

	args := []string{inv.cfg.ScriptPath, "--input", inputPath, "--output", outputPath}
	args = append(args, extraArgs...)

	if err := inv.run(ctx, args, nil, nil); err != nil {
		return nil, err
	}

	out, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, &OutputError{Reason: "output-файл не создан", Err: err}
	}
	return probeResult(out)
}

// InvokeStdio запускает анализатор в потоковом режиме: payload подаётся
// на stdin, результат читается со stdout.
func (inv *Invoker) InvokeStdio(ctx context.Context, payload any, extraArgs ...string) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация задания: %w", err)
	}

	args := append([]string{inv.cfg.ScriptPath}, extraArgs...)

	var stdout bytes.Buffer
	if err := inv.run(ctx, args, bytes.NewReader(data), &stdout); err != nil {
		return nil, err
	}
	return probeResult(stdout.Bytes())
}

// run выполняет процесс анализатора с ограничением по времени.
func (inv *Invoker) run(ctx context.Context, args []string, stdin *bytes.Reader, stdout *bytes.Buffer) error {
	runCtx, cancel := context.WithTimeout(ctx, inv.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.cfg.Interpreter, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}

	start := time.Now()
	inv.logger.Debug("Запуск анализатора",
		slog.String("script", inv.cfg.ScriptPath))

	err := cmd.Run()
	if err != nil {
		// Процесс убит по таймауту.
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			inv.logger.Error("Анализатор превысил таймаут",
				slog.Duration("timeout", inv.cfg.Timeout))
			return &TimeoutError{Timeout: inv.cfg.Timeout.String()}
		}

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		inv.logger.Error("Анализатор завершился с ошибкой",
			slog.Int("exit_code", exitCode),
			slog.String("stderr", truncate(stderr.String(), maxStderr)))
		return &ProcessError{
			ExitCode: exitCode,
			Stderr:   truncate(stderr.String(), maxStderr),
			Err:      err,
		}
	}

	inv.logger.Debug("Анализатор завершился",
		slog.Duration("duration", time.Since(start)))
	return nil
}

// probeResult разбирает вывод анализатора и проверяет, не вернул ли
// успешно завершившийся процесс ошибку внутри результата.
func probeResult(out []byte) (json.RawMessage, error) {
	var probe struct {
		Status  string `json:"status"`
		Success *bool  `json:"success"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, &OutputError{Reason: "результат не является JSON", Raw: truncate(string(out), maxStderr), Err: err}
	}

	if probe.Status == "error" || (probe.Success != nil && !*probe.Success) {
		msg := probe.Error
		if msg == "" {
			msg = probe.Message
		}
		if msg == "" {
			msg = "причина не указана"
		}
		return nil, &ReportedError{Message: msg}
	}

	return json.RawMessage(out), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
