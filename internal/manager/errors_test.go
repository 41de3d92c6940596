package manager

import (
	"fmt"
	"testing"
)

func TestErrorHelpersSeeThroughWrapping(t *testing.T) {
	cases := []struct {
		err   error
		check func(error) bool
	}{
		{tooBusyError{modelID: "a"}, IsTooBusy},
		{ErrNotConfigured("a", "x"), IsNotConfigured},
		{ErrDependencyUnavailable("gone"), IsDependencyUnavailable},
		{unsupportedFormatError{format: "mlx"}, IsUnsupportedFormat},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("outer: %w", c.err)
		if !c.check(c.err) || !c.check(wrapped) {
			t.Fatalf("helper did not match %T", c.err)
		}
	}
	if IsTooBusy(ErrNotConfigured("a", "")) || IsNotConfigured(nil) {
		t.Fatalf("helpers must not cross-match")
	}
}

func TestNotConfiguredMessage(t *testing.T) {
	if got := ErrNotConfigured("m", "").Error(); got != "model not configured: m" {
		t.Fatalf("got %q", got)
	}
	if got := ErrNotConfigured("m", "remote").Error(); got != "model not configured: m (remote)" {
		t.Fatalf("got %q", got)
	}
}
