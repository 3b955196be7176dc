package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"classifyd/internal/backend/centroid"
	"classifyd/internal/classifier"
	"classifyd/internal/httpapi"
	"classifyd/internal/pool"
)

// solidPNG encodes an 8x8 image filled with c.
func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// writeFixtures lays out TFModels/colors.json and TestImages/TestImage.png
// under a temp dir and returns the two paths.
func writeFixtures(t *testing.T) (model, testImage string) {
	t.Helper()
	dir := t.TempDir()
	ones := make([]float32, 12)
	for i := range ones {
		ones[i] = 1
	}
	data, err := centroid.Marshal(2, 0.1, []centroid.Class{
		{Label: "black", Centroid: make([]float32, 12)},
		{Label: "white", Centroid: ones},
	})
	if err != nil {
		t.Fatalf("marshal model: %v", err)
	}
	model = filepath.Join(dir, "TFModels", "colors.json")
	testImage = filepath.Join(dir, "TestImages", "TestImage.png")
	for _, p := range []string{model, testImage} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(model, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(testImage, solidPNG(t, color.White), 0o644); err != nil {
		t.Fatal(err)
	}
	return model, testImage
}

// newServer starts an httptest server backed by a real classifier service.
func newServer(t *testing.T, size int, mode pool.AcquireMode, timeout time.Duration) (*httptest.Server, *classifier.Service) {
	t.Helper()
	model, testImage := writeFixtures(t)
	svc, err := classifier.New(context.Background(), classifier.Options{
		Pool: pool.Config{
			PoolSize:       size,
			ModelPath:      model,
			Backend:        centroid.New(),
			AcquireMode:    mode,
			AcquireTimeout: timeout,
			DrainTimeout:   100 * time.Millisecond,
		},
		TestImage: testImage,
	})
	if err != nil {
		t.Fatalf("classifier.New: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Close()
	})
	return srv, svc
}

func postPNG(t *testing.T, url string, body []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "image/png", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func decode(t *testing.T, b []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", string(b), err)
	}
}
