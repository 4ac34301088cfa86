package errkind

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndKind(t *testing.T) {
	err := Wrap(errors.New("boom"), Transport)
	if KindOf(err) != Transport {
		t.Fatalf("expected kind %s, got %s", Transport, KindOf(err))
	}
	if !Is(err, Transport) {
		t.Fatal("expected Is true")
	}
}

func TestWrapPreservesExistingKind(t *testing.T) {
	first := New(Decode, "bad payload")
	second := Wrap(fmt.Errorf("pipeline: %w", first), Transport)
	if KindOf(second) != Decode {
		t.Fatalf("expected kind preserved, got %s", KindOf(second))
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(errors.New("x")) != Unknown {
		t.Fatal("expected unknown kind")
	}
	if KindOf(nil) != Unknown {
		t.Fatal("expected unknown kind for nil")
	}
}

func TestMessage(t *testing.T) {
	if got := Message(New(Response, "no audio")); got != "no audio" {
		t.Fatalf("expected own message, got %q", got)
	}
	if got := Message(&Error{Kind: Transport}); got != FallbackMessage {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := Message(errors.New("  ")); got != FallbackMessage {
		t.Fatalf("expected fallback for blank message, got %q", got)
	}
	if got := Message(nil); got != "" {
		t.Fatalf("expected empty message for nil, got %q", got)
	}
}

func TestMissingCredentialIsTransport(t *testing.T) {
	if !Is(ErrMissingCredential, Transport) {
		t.Fatal("missing credential should be a transport failure")
	}
	if !errors.Is(fmt.Errorf("gemini: %w", ErrMissingCredential), ErrMissingCredential) {
		t.Fatal("expected errors.Is to match the sentinel")
	}
}
