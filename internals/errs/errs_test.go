package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := E(KindNotFound, "tasks.Get", "task not found")
	wrapped := fmt.Errorf("handler: %w", base)

	if !errors.Is(wrapped, NotFound) {
		t.Fatalf("expected wrapped error to match NotFound")
	}
	if errors.Is(wrapped, InvalidInput) {
		t.Fatalf("did not expect match on InvalidInput")
	}
	if got := KindOf(wrapped); got != KindNotFound {
		t.Fatalf("expected kind %q, got %q", KindNotFound, got)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("expected internal, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(KindProvisioningFailed, "provision", errors.New("git exited 128"))
	if err.Error() != "provision: git exited 128" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if Wrap(KindInternal, "noop", nil) != nil {
		t.Fatalf("expected nil for nil wrap")
	}
}
