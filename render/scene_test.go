package render

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/arclight3d/arclight/core"
)

func f32At(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}

func TestEncodeLightsStride(t *testing.T) {
	lights := []Light{
		{Position: mgl32.Vec3{1, 2, 3}, Color: mgl32.Vec3{1, 1, 1}, Intensity: 5, Range: 10, Point: true},
		{Direction: mgl32.Vec3{0, -1, 0}, Color: mgl32.Vec3{1, 0.9, 0.8}, Intensity: 2},
	}
	buf := EncodeLights(lights)
	if len(buf) != 128 {
		t.Fatalf("two lights should pack to 128 bytes, got %d", len(buf))
	}

	// First light: position w=1, intensity in color.w, point flag set.
	if f32At(buf, 0) != 1 || f32At(buf, 12) != 1 {
		t.Error("position or its w term wrong")
	}
	if f32At(buf, 44) != 5 {
		t.Error("intensity belongs in color.w")
	}
	if f32At(buf, 48) != 10 || f32At(buf, 56) != 1 {
		t.Error("range or point flag wrong")
	}
	// Second light: directional, point flag clear.
	if f32At(buf, 64+56) != 0 {
		t.Error("directional light must not set the point flag")
	}
}

func TestEncodeLightsEmptyFallback(t *testing.T) {
	buf := EncodeLights(nil)
	if len(buf) != 64 {
		t.Fatalf("empty scene still needs one record, got %d bytes", len(buf))
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatal("fallback light must be all zero")
		}
	}
}

func TestEncodeMaterialsStrideAndGain(t *testing.T) {
	mats := []Material{
		{BaseColor: mgl32.Vec4{1, 0, 0, 1}, Emissive: mgl32.Vec3{1, 1, 1}, EmissiveGain: 3, Roughness: 0.5, Metalness: 1, AlphaCutoff: 0.25, AtlasLayer: 2},
		{BaseColor: mgl32.Vec4{0, 1, 0, 1}, Emissive: mgl32.Vec3{0.5, 0, 0}, AtlasLayer: -1},
	}
	buf := EncodeMaterials(mats)
	if len(buf) != 2*MaterialStride {
		t.Fatalf("got %d bytes, want %d", len(buf), 2*MaterialStride)
	}

	if f32At(buf, 16) != 3 {
		t.Error("emissive must carry the gain")
	}
	if f32At(buf, 32) != 0.5 || f32At(buf, 36) != 1 {
		t.Error("roughness/metalness misplaced")
	}
	if f32At(buf, 44) != 0.25 {
		t.Error("alpha cutoff misplaced")
	}
	if f32At(buf, 48) != 2 {
		t.Error("atlas layer misplaced")
	}

	// Zero gain defaults to 1 so untouched materials still emit.
	if f32At(buf, MaterialStride+16) != 0.5 {
		t.Error("default gain must be 1")
	}
	if f32At(buf, MaterialStride+48) != -1 {
		t.Error("untextured layer must stay negative")
	}
}

func TestEncodeMaterialsEmptyFallback(t *testing.T) {
	if got := len(EncodeMaterials(nil)); got != MaterialStride {
		t.Fatalf("empty fallback is one zero record, got %d bytes", got)
	}
}

func TestEncodeTransforms(t *testing.T) {
	m := mgl32.Translate3D(1, 2, 3)
	buf := EncodeTransforms([]mgl32.Mat4{m})
	if len(buf) != 64 {
		t.Fatalf("one matrix packs to 64 bytes, got %d", len(buf))
	}
	// Column-major: translation lands in the last column.
	if f32At(buf, 48) != 1 || f32At(buf, 52) != 2 || f32At(buf, 56) != 3 {
		t.Error("translation column misplaced")
	}

	if got := len(EncodeTransforms(nil)); got != 64 {
		t.Fatalf("empty fallback is one identity-sized record, got %d", got)
	}
}

func TestEncodeMeta(t *testing.T) {
	meta := []core.MeshMeta{
		{Key: 1, AttributeStride: 8},
		{Key: 2, AttributeStride: 14, Flags: core.MeshMetaHasNormals},
	}
	buf := EncodeMeta(meta)
	if len(buf) != 2*core.MeshMetaStride {
		t.Fatalf("got %d bytes, want %d", len(buf), 2*core.MeshMetaStride)
	}
	second, err := core.DecodeMeshMeta(buf[core.MeshMetaStride:])
	if err != nil {
		t.Fatal(err)
	}
	if second != meta[1] {
		t.Fatalf("second record mismatch: %+v", second)
	}

	if got := len(EncodeMeta(nil)); got != core.MeshMetaStride {
		t.Fatalf("empty fallback is one zero record, got %d", got)
	}
}
