package image

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"横向超限", 1920, 1080, 1024, 1024, 576},
		{"纵向超限", 1080, 1920, 1024, 576, 1024},
		{"未超限不放大", 640, 480, 1024, 640, 480},
		{"零尺寸", 0, 0, 1024, 1, 1},
		{"不限制", 4000, 3000, 0, 4000, 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitSize(tt.w, tt.h, tt.max)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("FitSize(%d,%d,%d) = %dx%d, want %dx%d", tt.w, tt.h, tt.max, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPreprocessScalesAndKeepsAspect(t *testing.T) {
	dst := Preprocess(solid(1280, 720, color.RGBA{100, 100, 100, 255}), DefaultPreprocessOptions())
	if got := dst.Bounds().Dx(); got != 1024 {
		t.Fatalf("width = %d, want 1024", got)
	}
	if got := dst.Bounds().Dy(); got != 576 {
		t.Fatalf("height = %d, want 576", got)
	}
}

func TestPreprocessEnhancesPixels(t *testing.T) {
	// ((100/255-0.5)*1.2+0.5)*1.1*255 = 103.95
	dst := Preprocess(solid(4, 4, color.RGBA{100, 250, 0, 255}), DefaultPreprocessOptions())
	got := dst.RGBAAt(1, 1)
	if got.R != 104 {
		t.Errorf("R = %d, want 104", got.R)
	}
	if got.G != 255 {
		t.Errorf("G = %d, want clamped 255", got.G)
	}
	if got.B != 0 {
		t.Errorf("B = %d, want clamped 0", got.B)
	}
	if got.A != 255 {
		t.Errorf("A = %d, want 255", got.A)
	}
}

func TestPreprocessDegenerateInput(t *testing.T) {
	for _, src := range []image.Image{nil, image.NewRGBA(image.Rect(0, 0, 0, 0))} {
		dst := Preprocess(src, DefaultPreprocessOptions())
		if dst.Bounds().Dx() != 1 || dst.Bounds().Dy() != 1 {
			t.Errorf("degenerate input produced %v", dst.Bounds())
		}
	}
}

func TestEncodeJPEGCapsLongestSide(t *testing.T) {
	data, err := EncodeJPEG(solid(3000, 1500, color.RGBA{255, 255, 255, 255}), 80, 1920)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 1920 || cfg.Height != 960 {
		t.Errorf("encoded %dx%d, want 1920x960", cfg.Width, cfg.Height)
	}
}

func TestEncodeJPEGRejectsEmpty(t *testing.T) {
	if _, err := EncodeJPEG(image.NewRGBA(image.Rect(0, 0, 0, 0)), 75, 1024); err == nil {
		t.Fatal("expected error for empty image")
	}
}
