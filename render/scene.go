package render

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/arclight3d/arclight/core"
)

// Light is one scene light. Directional lights leave Position unused;
// point lights set the point flag in the packed params.
type Light struct {
	Position  mgl32.Vec3
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	Range     float32
	Point     bool
}

// Material is the CPU-side material record. Packed to a fixed 64-byte
// stride; shaders turn byte offsets into records by dividing by that stride.
type Material struct {
	BaseColor    mgl32.Vec4
	Emissive     mgl32.Vec3
	Roughness    float32
	Metalness    float32
	AlphaCutoff  float32
	AtlasLayer   int32 // negative when untextured
	EmissiveGain float32
}

// MaterialStride is the byte stride of one packed material record.
const MaterialStride = 64

// DrawCall is one geometry submission. MetaIndex addresses the object's
// MeshMeta record; the vertex stage resolves every attribute through it.
type DrawCall struct {
	MetaIndex     uint32
	VertexCount   uint32
	InstanceCount uint32
	Features      core.FeatureDescriptor
	Transparent   bool
}

// Scene carries one frame's worth of GPU-bound data, already flattened.
// Byte slices are uploaded verbatim; the meta records tie them together.
type Scene struct {
	Camera core.CameraUniform

	// Features carries the frame-level flags: multisampled geometry, the
	// effect toggles and the tonemap operator. Per-draw attribute flags
	// live on each DrawCall instead.
	Features core.FeatureDescriptor

	Meta       []core.MeshMeta
	Transforms []byte
	Attributes []byte

	// MorphWeights holds one f32 per target starting at each mesh's
	// MorphWeightsOffset. MorphValues packs deltas per vertex: for vertex
	// vi and target m, the vec3 position delta sits at word
	// MorphValuesOffset + (vi*targets + m)*3.
	MorphWeights []byte
	MorphValues  []byte

	Joints []byte

	Materials []Material
	Lights    []Light

	Draws []DrawCall
}

// EncodeLights packs lights as four vec4s each: position, direction, color
// with intensity in w, params (range, unused, point flag, unused).
func EncodeLights(lights []Light) []byte {
	out := make([]byte, 0, len(lights)*64)
	for _, l := range lights {
		out = appendVec4(out, l.Position.X(), l.Position.Y(), l.Position.Z(), 1)
		out = appendVec4(out, l.Direction.X(), l.Direction.Y(), l.Direction.Z(), 0)
		out = appendVec4(out, l.Color.X(), l.Color.Y(), l.Color.Z(), l.Intensity)
		point := float32(0)
		if l.Point {
			point = 1
		}
		out = appendVec4(out, l.Range, 0, point, 0)
	}
	if len(out) == 0 {
		// Empty storage bindings are invalid; one dark light keeps the
		// arrayLength loop harmless.
		out = make([]byte, 64)
	}
	return out
}

// EncodeMaterials packs material records at MaterialStride bytes each.
func EncodeMaterials(materials []Material) []byte {
	out := make([]byte, 0, len(materials)*MaterialStride)
	for _, m := range materials {
		out = appendVec4(out, m.BaseColor.X(), m.BaseColor.Y(), m.BaseColor.Z(), m.BaseColor.W())
		gain := m.EmissiveGain
		if gain == 0 {
			gain = 1
		}
		out = appendVec4(out, m.Emissive.X()*gain, m.Emissive.Y()*gain, m.Emissive.Z()*gain, 0)
		out = appendVec4(out, m.Roughness, m.Metalness, 0, m.AlphaCutoff)
		out = appendVec4(out, float32(m.AtlasLayer), 0, 0, 0)
	}
	if len(out) == 0 {
		out = make([]byte, MaterialStride)
	}
	return out
}

// EncodeTransforms packs model matrices column-major at 64 bytes each.
func EncodeTransforms(mats []mgl32.Mat4) []byte {
	out := make([]byte, 0, len(mats)*64)
	for _, m := range mats {
		for i := 0; i < 16; i++ {
			out = appendF32(out, m[i])
		}
	}
	if len(out) == 0 {
		out = make([]byte, 64)
	}
	return out
}

// EncodeMeta flattens the per-object records into the shared storage layout.
func EncodeMeta(meta []core.MeshMeta) []byte {
	out := make([]byte, 0, len(meta)*core.MeshMetaStride)
	for _, m := range meta {
		out = core.AppendMeshMeta(out, m)
	}
	if len(out) == 0 {
		out = make([]byte, core.MeshMetaStride)
	}
	return out
}

func appendF32(buf []byte, v float32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v))
	return append(buf, tmp[:]...)
}

func appendVec4(buf []byte, x, y, z, w float32) []byte {
	buf = appendF32(buf, x)
	buf = appendF32(buf, y)
	buf = appendF32(buf, z)
	return appendF32(buf, w)
}
