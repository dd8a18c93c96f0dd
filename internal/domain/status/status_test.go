package status

import (
	"errors"
	"testing"
)

// TestTransitionAllowed проверяет разрешённые переходы.
func TestTransitionAllowed(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{Pending, Processing},
		{Pending, Failed},
		{Processing, Completed},
		{Processing, Failed},
	}

	for _, c := range cases {
		if err := Transition(c.from, c.to); err != nil {
			t.Errorf("Transition(%s, %s): неожиданная ошибка: %v", c.from, c.to, err)
		}
	}
}

// TestTransitionForbidden проверяет запрещённые переходы.
func TestTransitionForbidden(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{Pending, Completed},
		{Completed, Processing},
		{Completed, Failed},
		{Failed, Pending},
		{Failed, Completed},
		{Processing, Pending},
	}

	for _, c := range cases {
		err := Transition(c.from, c.to)
		if err == nil {
			t.Errorf("Transition(%s, %s): ожидалась ошибка", c.from, c.to)
			continue
		}
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Errorf("Transition(%s, %s): ожидался *TransitionError, получено %T", c.from, c.to, err)
			continue
		}
		if te.From != c.from || te.To != c.to {
			t.Errorf("TransitionError: получено %s -> %s, ожидалось %s -> %s", te.From, te.To, c.from, c.to)
		}
	}
}

// TestIsTerminal проверяет определение конечных статусов.
func TestIsTerminal(t *testing.T) {
	if IsTerminal(Pending) || IsTerminal(Processing) {
		t.Error("pending и processing не должны быть конечными")
	}
	if !IsTerminal(Completed) || !IsTerminal(Failed) {
		t.Error("completed и failed должны быть конечными")
	}
}

// TestValid проверяет распознавание статусов.
func TestValid(t *testing.T) {
	for _, s := range []Status{Pending, Processing, Completed, Failed} {
		if !Valid(s) {
			t.Errorf("Valid(%s) = false, ожидалось true", s)
		}
	}
	if Valid(Status("unknown")) {
		t.Error("Valid(unknown) = true, ожидалось false")
	}
}
