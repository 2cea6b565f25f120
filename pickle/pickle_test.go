package pickle

import "testing"

func TestRoundTripFixedWidth(t *testing.T) {
	var w Writer
	w.PutU8(0xAB)
	w.PutU16(0x1234)
	w.PutU32(0xDEADBEEF)
	w.PutU64(0x0102030405060708)
	w.PutI64(-1)
	w.PutBytes([]byte("hi"))

	r := NewReader(w.Bytes())
	if v, _ := r.U8(); v != 0xAB {
		t.Fatalf("U8 = %#x", v)
	}
	if v, _ := r.U16(); v != 0x1234 {
		t.Fatalf("U16 = %#x", v)
	}
	if v, _ := r.U32(); v != 0xDEADBEEF {
		t.Fatalf("U32 = %#x", v)
	}
	if v, _ := r.U64(); v != 0x0102030405060708 {
		t.Fatalf("U64 = %#x", v)
	}
	if v, _ := r.I64(); v != -1 {
		t.Fatalf("I64 = %d", v)
	}
	b, _ := r.Bytes(2)
	if string(b) != "hi" {
		t.Fatalf("Bytes = %q", b)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40, ^uint64(0)}
	var w Writer
	for _, v := range values {
		w.PutVarint(v)
	}
	r := NewReader(w.Bytes())
	for _, want := range values {
		got, err := r.Varint()
		if err != nil {
			t.Fatalf("Varint: %v", err)
		}
		if got != want {
			t.Fatalf("Varint = %d, want %d", got, want)
		}
	}
}

func TestShortBuffer(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.U32(); err != ErrShortBuffer {
		t.Fatalf("err = %v, want ErrShortBuffer", err)
	}
}
