package backend

import "testing"

func TestNew(t *testing.T) {
	for _, name := range []string{"centroid", "ONNX", " centroid "} {
		b, err := New(name, Options{})
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if b == nil || b.Name() == "" {
			t.Fatalf("New(%q) returned empty backend", name)
		}
	}
	if _, err := New("tensorflow", Options{}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestNames(t *testing.T) {
	n := Names()
	if len(n) != 2 || n[0] != "centroid" || n[1] != "onnx" {
		t.Fatalf("Names=%v", n)
	}
}

func TestByExtension(t *testing.T) {
	if ByExtension("models/fer.ONNX") != "onnx" || ByExtension("models/colors.json") != "centroid" {
		t.Fatalf("unexpected extension mapping")
	}
}
