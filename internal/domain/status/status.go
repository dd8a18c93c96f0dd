// Пакет status — статусы заданий анализа и машина переходов между ними.
package status

import "fmt"

// Status — статус задания анализа.
type Status string

const (
	// Pending — задание принято, обработка не начата
	Pending Status = "pending"
	// Processing — задание передано анализатору
	Processing Status = "processing"
	// Completed — анализ успешно завершён, результат сохранён
	Completed Status = "completed"
	// Failed — анализ завершился ошибкой
	Failed Status = "failed"
)

// transitions — матрица допустимых переходов между статусами.
var transitions = map[Status][]Status{
	Pending:    {Processing, Failed},
	Processing: {Completed, Failed},
	Completed:  {},
	Failed:     {},
}

// TransitionError — ошибка недопустимого перехода между статусами.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("недопустимый переход статуса: %s -> %s", e.From, e.To)
}

// Valid проверяет, что строка является известным статусом.
func Valid(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition проверяет допустимость перехода from -> to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition валидирует переход from -> to.
// Возвращает *TransitionError, если переход не разрешён матрицей.
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// IsTerminal проверяет, что статус конечный.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}
