package storage

import "testing"

func TestParseLayout(t *testing.T) {
	if l, err := ParseLayout("flat"); err != nil || l.Grouped() {
		t.Errorf("flat layout: %v, grouped=%v", err, l.Grouped())
	}
	if l, err := ParseLayout("grouped"); err != nil || !l.Grouped() {
		t.Errorf("grouped layout: %v", err)
	}
	if l, err := ParseLayout(""); err != nil || !l.Grouped() {
		t.Errorf("default layout should be grouped: %v", err)
	}
	if _, err := ParseLayout("bogus"); err == nil {
		t.Error("unknown layout accepted")
	}
}

func TestFlatResolve(t *testing.T) {
	got := Flat{}.Resolve("box", "n1", "2026-01-20T10:00:00.000000000Z")
	if got != "box/n1.md" {
		t.Errorf("Resolve = %q, want box/n1.md", got)
	}
}

func TestMonthlyResolve(t *testing.T) {
	got := Monthly{}.Resolve("box", "n1", "2026-01-20T10:00:00.000000000Z")
	if got != "box/2026-01.md" {
		t.Errorf("Resolve = %q, want box/2026-01.md", got)
	}
}

func TestMonthlyResolveDeterministic(t *testing.T) {
	created := "2026-07-31T23:59:59.000000000Z"
	a := Monthly{}.Resolve("box", "n1", created)
	b := Monthly{}.Resolve("box", "n2", created)
	if a != b {
		t.Errorf("same module and month resolved differently: %q vs %q", a, b)
	}
}

func TestMonthlyResolveUndated(t *testing.T) {
	got := Monthly{}.Resolve("box", "n1", "garbage")
	if got != "box/undated.md" {
		t.Errorf("Resolve = %q, want box/undated.md", got)
	}
}
