package gpu

import (
	"encoding/binary"
	"image"
	"image/color"
	"testing"
)

func solidRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestStageWithBleedReplicatesEdges(t *testing.T) {
	// 4x4 source with a distinct color per texel so replication is checkable
	// exactly.
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.SetRGBA(x, y, color.RGBA{uint8(x * 60), uint8(y * 60), uint8(x + y), 255})
		}
	}

	out := StageWithBleed(src, 1, false)
	if out.Rect.Dx() != 6 || out.Rect.Dy() != 6 {
		t.Fatalf("staged size %dx%d, want 6x6", out.Rect.Dx(), out.Rect.Dy())
	}

	for oy := 0; oy < 6; oy++ {
		for ox := 0; ox < 6; ox++ {
			sx := clampInt(ox-1, 0, 3)
			sy := clampInt(oy-1, 0, 3)
			want := src.RGBAAt(sx, sy)
			got := out.RGBAAt(ox, oy)
			if got != want {
				t.Fatalf("staged (%d,%d) = %v, want clamped source (%d,%d) = %v", ox, oy, got, sx, sy, want)
			}
		}
	}
}

func TestStageWithBleedZeroPadding(t *testing.T) {
	src := solidRGBA(3, 2, color.RGBA{10, 20, 30, 40})
	out := StageWithBleed(src, 0, false)
	if out.Rect.Dx() != 3 || out.Rect.Dy() != 2 {
		t.Fatalf("zero padding must not change dimensions: got %dx%d", out.Rect.Dx(), out.Rect.Dy())
	}
	if out.RGBAAt(2, 1) != src.RGBAAt(2, 1) {
		t.Fatal("texels must pass through unchanged")
	}
}

func TestStageWithBleedLinearizesRGBOnly(t *testing.T) {
	src := solidRGBA(2, 2, color.RGBA{128, 255, 0, 200})
	out := StageWithBleed(src, 1, true)
	got := out.RGBAAt(1, 1)
	if got.R != srgbToLinear8(128) || got.G != 255 || got.B != 0 {
		t.Errorf("rgb should be linearized: got %v", got)
	}
	if got.A != 200 {
		t.Errorf("alpha must never be linearized: got %d", got.A)
	}
}

func TestSrgbToLinear8Endpoints(t *testing.T) {
	if srgbToLinear8(0) != 0 {
		t.Error("black maps to black")
	}
	if srgbToLinear8(255) != 255 {
		t.Error("white maps to white")
	}
	// Mid-gray moves down noticeably in linear space.
	if mid := srgbToLinear8(128); mid >= 128 || mid < 40 {
		t.Errorf("mid-gray out of expected linear range: %d", mid)
	}
}

func TestDispatchExtentCoversBleed(t *testing.T) {
	x, y, z := DispatchExtent(64, 32, 4)
	if x != 72 || y != 40 || z != 1 {
		t.Fatalf("got (%d,%d,%d), want (72,40,1)", x, y, z)
	}
}

func TestEncodeBlitParamsLayout(t *testing.T) {
	buf := EncodeBlitParams(256, 512, 3, 4, 100, 50, true)
	if len(buf) != 32 {
		t.Fatalf("record size %d, want 32", len(buf))
	}
	le := binary.LittleEndian
	want := []uint32{256, 512, 3, 4, 100, 50, 1, 0}
	for i, w := range want {
		if got := le.Uint32(buf[i*4:]); got != w {
			t.Errorf("word %d = %d, want %d", i, got, w)
		}
	}

	plain := EncodeBlitParams(0, 0, 0, 0, 1, 1, false)
	if le.Uint32(plain[24:]) != 0 {
		t.Error("srgb flag must be zero when not requested")
	}
}

func TestToRGBAKeepsSmallSources(t *testing.T) {
	src := solidRGBA(16, 8, color.RGBA{1, 2, 3, 255})
	out := toRGBA(src, 64)
	if out.Rect.Dx() != 16 || out.Rect.Dy() != 8 {
		t.Fatalf("small source resized: %dx%d", out.Rect.Dx(), out.Rect.Dy())
	}
}

func TestToRGBADownscalesToFit(t *testing.T) {
	src := solidRGBA(200, 100, color.RGBA{9, 9, 9, 255})
	out := toRGBA(src, 64)
	if out.Rect.Dx() != 64 || out.Rect.Dy() != 32 {
		t.Fatalf("got %dx%d, want 64x32 aspect-preserving fit", out.Rect.Dx(), out.Rect.Dy())
	}

	tall := solidRGBA(100, 200, color.RGBA{9, 9, 9, 255})
	out = toRGBA(tall, 64)
	if out.Rect.Dx() != 32 || out.Rect.Dy() != 64 {
		t.Fatalf("tall source: got %dx%d, want 32x64", out.Rect.Dx(), out.Rect.Dy())
	}
}
