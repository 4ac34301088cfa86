package main

import "testing"

func TestParseSpeakers(t *testing.T) {
	got, err := parseSpeakers(" A=Puck , B=Kore ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got[0].Name != "A" || got[0].Voice != "Puck" || got[1].Voice != "Kore" {
		t.Fatalf("unexpected speakers %+v", got)
	}

	for _, bad := range []string{"A=Puck", "A=Puck,B", "=Puck,B=Kore", "A=Puck,B=Kore,C=Fenrir"} {
		if _, err := parseSpeakers(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestFindPreset(t *testing.T) {
	p, ok := findPreset("fenrir-instruct")
	if !ok || p.Voice != "Fenrir" {
		t.Fatalf("unexpected preset %+v %v", p, ok)
	}
	if _, ok := findPreset("missing"); ok {
		t.Fatal("expected missing preset")
	}
}

func TestPeak(t *testing.T) {
	if got := peak([]float32{0.1, -0.75, 0.5}); got != 0.75 {
		t.Fatalf("expected 0.75, got %v", got)
	}
	if got := peak(nil); got != 0 {
		t.Fatalf("expected 0 for silence, got %v", got)
	}
}
