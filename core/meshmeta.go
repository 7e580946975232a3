package core

import (
	"encoding/binary"
	"fmt"
)

// ObjectId identifies a draw-able object across frames. Zero is a legitimate
// id; "no object" is expressed by the picking result's validity flag, never
// by an id value.
type ObjectId uint64

// Split returns the high and low 32-bit words used on the GPU side.
func (id ObjectId) Split() (hi, lo uint32) {
	return uint32(id >> 32), uint32(id)
}

// JoinObjectId reassembles an ObjectId from its GPU words.
func JoinObjectId(hi, lo uint32) ObjectId {
	return ObjectId(hi)<<32 | ObjectId(lo)
}

// Sentinel values in GPU-visible channels. The maximum representable offset
// means "absent"; shaders must short-circuit on it rather than index.
const (
	NoMaterial uint32 = 0xFFFFFFFF
	NoTriangle uint32 = 0xFFFFFFFF
	NoOffset   uint32 = 0xFFFFFFFF
)

// MeshMetaStride is the byte stride of one MeshMeta record in the shared
// metadata storage buffer. Fixed wire format: any field reorder or size
// change breaks every compiled shader variant.
const MeshMetaStride = 64

// Byte offsets of MeshMeta fields within one record.
const (
	metaOffKeyHigh      = 0
	metaOffKeyLow       = 4
	metaOffMorphWeights = 8
	metaOffMorphValues  = 12
	metaOffJoints       = 16
	metaOffMaterial     = 20
	metaOffTransform    = 24
	metaOffNormalMat    = 28
	metaOffAttributes   = 32
	metaOffAttrStride   = 36
	metaOffUVSets       = 40
	metaOffColorSets    = 44
	metaOffVisibility   = 48
	metaOffFlags        = 52
)

// MeshMeta flag bits. The attribute-layout bits let screen-space passes
// locate fields inside an interleaved vertex record without knowing the
// geometry variant that produced it.
const (
	MeshMetaInstanced   uint32 = 1 << 0
	MeshMetaSkinned     uint32 = 1 << 1
	MeshMetaMorphed     uint32 = 1 << 2
	MeshMetaHasNormals  uint32 = 1 << 3
	MeshMetaHasTangents uint32 = 1 << 4
)

// MeshMeta is the fixed-size, GPU-visible record produced per draw-able
// object each frame. All offsets index into the pool's shared storage
// buffers; absent fields hold NoOffset. Consumed read-only by every pass.
type MeshMeta struct {
	Key ObjectId

	MorphWeightsOffset uint32
	MorphValuesOffset  uint32
	JointsOffset       uint32
	MaterialOffset     uint32
	TransformOffset    uint32
	NormalMatOffset    uint32
	AttributesOffset   uint32
	AttributeStride    uint32
	UVSetCount         uint32
	ColorSetCount      uint32
	VisibilityOffset   uint32
	Flags              uint32
}

// AppendMeshMeta serializes the record onto buf, always exactly
// MeshMetaStride bytes.
func AppendMeshMeta(buf []byte, m MeshMeta) []byte {
	rec := make([]byte, MeshMetaStride)
	hi, lo := m.Key.Split()
	binary.LittleEndian.PutUint32(rec[metaOffKeyHigh:], hi)
	binary.LittleEndian.PutUint32(rec[metaOffKeyLow:], lo)
	binary.LittleEndian.PutUint32(rec[metaOffMorphWeights:], m.MorphWeightsOffset)
	binary.LittleEndian.PutUint32(rec[metaOffMorphValues:], m.MorphValuesOffset)
	binary.LittleEndian.PutUint32(rec[metaOffJoints:], m.JointsOffset)
	binary.LittleEndian.PutUint32(rec[metaOffMaterial:], m.MaterialOffset)
	binary.LittleEndian.PutUint32(rec[metaOffTransform:], m.TransformOffset)
	binary.LittleEndian.PutUint32(rec[metaOffNormalMat:], m.NormalMatOffset)
	binary.LittleEndian.PutUint32(rec[metaOffAttributes:], m.AttributesOffset)
	binary.LittleEndian.PutUint32(rec[metaOffAttrStride:], m.AttributeStride)
	binary.LittleEndian.PutUint32(rec[metaOffUVSets:], m.UVSetCount)
	binary.LittleEndian.PutUint32(rec[metaOffColorSets:], m.ColorSetCount)
	binary.LittleEndian.PutUint32(rec[metaOffVisibility:], m.VisibilityOffset)
	binary.LittleEndian.PutUint32(rec[metaOffFlags:], m.Flags)
	return append(buf, rec...)
}

// DecodeMeshMeta reads one record back. Used by picking to resolve a
// triangle hit into an object key, and by tests.
func DecodeMeshMeta(rec []byte) (MeshMeta, error) {
	if len(rec) < MeshMetaStride {
		return MeshMeta{}, fmt.Errorf("mesh meta record too short: %d bytes", len(rec))
	}
	le := binary.LittleEndian
	return MeshMeta{
		Key:                JoinObjectId(le.Uint32(rec[metaOffKeyHigh:]), le.Uint32(rec[metaOffKeyLow:])),
		MorphWeightsOffset: le.Uint32(rec[metaOffMorphWeights:]),
		MorphValuesOffset:  le.Uint32(rec[metaOffMorphValues:]),
		JointsOffset:       le.Uint32(rec[metaOffJoints:]),
		MaterialOffset:     le.Uint32(rec[metaOffMaterial:]),
		TransformOffset:    le.Uint32(rec[metaOffTransform:]),
		NormalMatOffset:    le.Uint32(rec[metaOffNormalMat:]),
		AttributesOffset:   le.Uint32(rec[metaOffAttributes:]),
		AttributeStride:    le.Uint32(rec[metaOffAttrStride:]),
		UVSetCount:         le.Uint32(rec[metaOffUVSets:]),
		ColorSetCount:      le.Uint32(rec[metaOffColorSets:]),
		VisibilityOffset:   le.Uint32(rec[metaOffVisibility:]),
		Flags:              le.Uint32(rec[metaOffFlags:]),
	}, nil
}
