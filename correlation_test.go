package paws

import (
	"context"
	"strings"
	"testing"
)

func TestNormalizeCorrelationID(t *testing.T) {
	t.Parallel()
	if id, ok := NormalizeCorrelationID("  req-1  "); !ok || id != "req-1" {
		t.Fatalf("got %q %v", id, ok)
	}
	if _, ok := NormalizeCorrelationID(""); ok {
		t.Fatalf("empty id accepted")
	}
	if _, ok := NormalizeCorrelationID(strings.Repeat("a", MaxCorrelationIDLength+1)); ok {
		t.Fatalf("oversized id accepted")
	}
	if _, ok := NormalizeCorrelationID("bad\nid"); ok {
		t.Fatalf("control character accepted")
	}
	if _, ok := NormalizeCorrelationID("café"); ok {
		t.Fatalf("non-ascii accepted")
	}
}

func TestCorrelationIDContextRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := WithCorrelationID(context.Background(), "req-7")
	if got := CorrelationIDFromContext(ctx); got != "req-7" {
		t.Fatalf("got %q", got)
	}
	unchanged := WithCorrelationID(context.Background(), "\n")
	if got := CorrelationIDFromContext(unchanged); got != "" {
		t.Fatalf("invalid id stored: %q", got)
	}
	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()
	a := GenerateCorrelationID()
	b := GenerateCorrelationID()
	if a == "" || a == b {
		t.Fatalf("ids not unique: %q %q", a, b)
	}
	if normalized, ok := NormalizeCorrelationID(a); !ok || normalized != a {
		t.Fatalf("generated id does not normalize to itself: %q", a)
	}
}
