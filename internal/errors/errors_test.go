package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", NewValidationError("strike", -1.0, "must be positive"), "invalid_input"},
		{"wrapped validation", Wrap(NewValidationError("spot", 0.0, "must be positive"), "price"), "invalid_input"},
		{"unavailable", Unavailable("AAPL", nil), "market_data_unavailable"},
		{"unavailable with cause", Unavailable("AAPL", fmt.Errorf("timeout")), "market_data_unavailable"},
		{"expired", Wrapf(ErrAlreadyExpired, "T=%v", 0), "already_expired"},
		{"convergence", ErrConvergenceFailure, "convergence_failure"},
		{"no legs", ErrUnderspecifiedStrategy, "underspecified_strategy"},
		{"other", errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationErrorAs(t *testing.T) {
	err := Wrap(NewValidationError("quantity", 0, "must be non-zero"), "leg 2")

	var ve *ValidationError
	if !As(err, &ve) {
		t.Fatal("expected ValidationError in chain")
	}
	if ve.Field != "quantity" {
		t.Errorf("Field = %q, want quantity", ve.Field)
	}
	if !Is(err, ErrInvalidInput) {
		t.Error("expected ErrInvalidInput in chain")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}
