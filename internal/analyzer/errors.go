package analyzer

import "fmt"

// ProcessError — ошибка запуска или выполнения процесса анализатора.
// Несёт код завершения и хвост stderr для диагностики.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("процесс анализатора завершился с кодом %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("процесс анализатора завершился с кодом %d: %v", e.ExitCode, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// OutputError — ошибка чтения или разбора вывода анализатора.
// Raw — сырой неразобранный вывод (усечён, как и stderr),
// сохраняется для диагностики.
type OutputError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *OutputError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("некорректный вывод анализатора: %s: %v; вывод: %s", e.Reason, e.Err, e.Raw)
	}
	return fmt.Sprintf("некорректный вывод анализатора: %s: %v", e.Reason, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

// ReportedError — анализатор завершился успешно, но сообщил об ошибке
// в самом результате (status=error или success=false).
type ReportedError struct {
	Message string
}

func (e *ReportedError) Error() string {
	return fmt.Sprintf("анализатор сообщил об ошибке: %s", e.Message)
}

// TimeoutError — превышено время выполнения анализа.
type TimeoutError struct {
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("превышено время выполнения анализа (%s)", e.Timeout)
}
