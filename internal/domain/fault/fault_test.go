package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := NotFound("abc")
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("ошибка NotFound должна совпадать с ErrNotFound")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatal("ошибка NotFound не должна совпадать с ErrConflict")
	}

	wrapped := fmt.Errorf("обёртка: %w", ToolFailure("qpdf", 2, "exit 2", nil))
	if !errors.Is(wrapped, ErrToolFailure) {
		t.Fatal("обёрнутая ToolFailure должна совпадать с ErrToolFailure")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{Validation("плохо"), KindValidation},
		{RateLimited(10, "много"), KindRateLimited},
		{PathViolation("../x"), KindPathViolation},
		{fmt.Errorf("ctx: %w", Conflict("занято")), KindConflict},
		{errors.New("что-то"), KindInternal},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v): хотели %s, получили %s", tt.err, tt.want, got)
		}
	}
}

func TestWithStage(t *testing.T) {
	base := ToolFailure("", 1, "exit 1", nil)
	staged := WithStage(base, "encrypt")
	if staged.Stage != "encrypt" {
		t.Errorf("Stage: хотели encrypt, получили %q", staged.Stage)
	}
	if base.Stage != "" {
		t.Error("WithStage не должен изменять исходную ошибку")
	}

	plain := WithStage(errors.New("io"), "hash")
	if plain.Kind != KindInternal || plain.Stage != "hash" {
		t.Errorf("неожиданная обёртка: %+v", plain)
	}
}
