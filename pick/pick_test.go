package pick

import (
	"encoding/binary"
	"testing"

	"github.com/arclight3d/arclight/core"
)

func TestDecodeResultMiss(t *testing.T) {
	rec := make([]byte, ResultSize)
	res, err := DecodeResult(rec)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Fatal("sentinel texel must decode as a miss")
	}
}

func TestDecodeResultHit(t *testing.T) {
	rec := make([]byte, ResultSize)
	le := binary.LittleEndian
	le.PutUint32(rec[0:], 1)
	le.PutUint32(rec[4:], 0x11223344)
	le.PutUint32(rec[8:], 0x55667788)

	res, err := DecodeResult(rec)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK {
		t.Fatal("valid record must decode as a hit")
	}
	if res.Object != core.ObjectId(0x1122334455667788) {
		t.Fatalf("object id %#x", uint64(res.Object))
	}
}

func TestDecodeResultZeroIdHit(t *testing.T) {
	// Object id zero is a legal id; only the valid word decides hit vs miss.
	rec := make([]byte, ResultSize)
	binary.LittleEndian.PutUint32(rec[0:], 1)
	res, err := DecodeResult(rec)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Object != 0 {
		t.Fatalf("zero id must still be a hit: %+v", res)
	}
}

func TestDecodeResultShortRecord(t *testing.T) {
	if _, err := DecodeResult(make([]byte, ResultSize-1)); err == nil {
		t.Fatal("expected error for short record")
	}
}

func TestEncodeParamsLayout(t *testing.T) {
	buf := EncodeParams(640, 360)
	if len(buf) != 16 {
		t.Fatalf("uniform record size %d, want 16", len(buf))
	}
	le := binary.LittleEndian
	if le.Uint32(buf[0:]) != 640 || le.Uint32(buf[4:]) != 360 {
		t.Fatal("coordinates misplaced")
	}
	if le.Uint32(buf[8:]) != 0 || le.Uint32(buf[12:]) != 0 {
		t.Fatal("padding words must be zero")
	}
}
