package core

import (
	"encoding/binary"
	"testing"
)

func TestObjectIdSplitJoin(t *testing.T) {
	ids := []ObjectId{0, 1, 0xFFFFFFFF, 0x100000000, 0xDEADBEEFCAFEF00D}
	for _, id := range ids {
		hi, lo := id.Split()
		if JoinObjectId(hi, lo) != id {
			t.Errorf("id %#x did not survive split/join", uint64(id))
		}
	}
}

func TestAppendMeshMetaStride(t *testing.T) {
	var buf []byte
	metas := []MeshMeta{
		{},
		{Key: 42, MaterialOffset: 128, AttributesOffset: 4096, AttributeStride: 11},
		{Key: 0xFFFFFFFFFFFFFFFF, MorphWeightsOffset: NoOffset, JointsOffset: NoOffset},
	}
	for _, m := range metas {
		buf = AppendMeshMeta(buf, m)
	}
	if len(buf) != len(metas)*MeshMetaStride {
		t.Fatalf("expected %d bytes, got %d", len(metas)*MeshMetaStride, len(buf))
	}
}

func TestMeshMetaRoundtrip(t *testing.T) {
	m := MeshMeta{
		Key:                0xABCDEF0123456789,
		MorphWeightsOffset: 100,
		MorphValuesOffset:  200,
		JointsOffset:       NoOffset,
		MaterialOffset:     64,
		TransformOffset:    128,
		NormalMatOffset:    192,
		AttributesOffset:   4096,
		AttributeStride:    14,
		UVSetCount:         2,
		ColorSetCount:      1,
		VisibilityOffset:   NoOffset,
		Flags:              MeshMetaSkinned | MeshMetaHasNormals,
	}
	rec := AppendMeshMeta(nil, m)
	got, err := DecodeMeshMeta(rec)
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("roundtrip mismatch:\nwant %+v\ngot  %+v", m, got)
	}
}

func TestMeshMetaKeyWordOrder(t *testing.T) {
	// The GPU reads key_hi first; the wire order is part of the picking
	// contract.
	rec := AppendMeshMeta(nil, MeshMeta{Key: 0x1122334455667788})
	hi := binary.LittleEndian.Uint32(rec[0:])
	lo := binary.LittleEndian.Uint32(rec[4:])
	if hi != 0x11223344 || lo != 0x55667788 {
		t.Fatalf("unexpected word order: hi=%#x lo=%#x", hi, lo)
	}
}

func TestDecodeMeshMetaShortRecord(t *testing.T) {
	if _, err := DecodeMeshMeta(make([]byte, MeshMetaStride-1)); err == nil {
		t.Fatal("expected error for short record")
	}
}
