package bridge

import (
	"errors"
	"testing"
)

func TestGasMeter(t *testing.T) {
	g := NewGas(100)
	if err := g.Consume(60); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := g.Consume(40); err != nil {
		t.Fatalf("consume to the limit: %v", err)
	}
	if g.Remaining() != 0 || g.Exhausted() {
		t.Fatalf("spending exactly the limit is not exhaustion: used=%d", g.Used())
	}
	if err := g.Consume(1); !errors.Is(err, ErrOutOfGas) {
		t.Fatalf("expected ErrOutOfGas, got %v", err)
	}
	if !g.Exhausted() || g.Used() != 100 {
		t.Fatalf("exhausted meter should report the full limit used: %d", g.Used())
	}
	if err := g.Consume(0); !errors.Is(err, ErrOutOfGas) {
		t.Fatalf("an exhausted meter stays exhausted, got %v", err)
	}

	unlimited := UnlimitedGas()
	if err := unlimited.Consume(1 << 40); err != nil || unlimited.Exhausted() {
		t.Fatalf("unlimited meter failed: %v", err)
	}
}

func TestTruncateReason(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{in: "short", limit: 150, want: "short"},
		{in: "abcdef", limit: 3, want: "abc"},
		{in: "aé", limit: 2, want: "a"},
		{in: "anything", limit: 0, want: "anything"},
	}
	for _, tc := range cases {
		if got := truncateReason(tc.in, tc.limit); got != tc.want {
			t.Fatalf("truncateReason(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestCallbackErrorUnwraps(t *testing.T) {
	cause := errors.New("cause")
	err := error(&CallbackError{Reason: "cause", cause: cause})
	if !errors.Is(err, cause) {
		t.Fatalf("callback error should unwrap to its cause")
	}
	var ce *CallbackError
	if !errors.As(err, &ce) || ce.Reason != "cause" {
		t.Fatalf("errors.As failed: %v", err)
	}
}
