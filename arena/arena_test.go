package arena

import "testing"

func TestAllocStableAcrossGrowth(t *testing.T) {
	a := New(16)
	first := a.Alloc(8)
	for i := range first {
		first[i] = byte(i + 1)
	}
	// force a new slab
	_ = a.Alloc(32)
	for i, b := range first {
		if b != byte(i+1) {
			t.Fatalf("first allocation corrupted at %d: got %d", i, b)
		}
	}
}

func TestRefCounting(t *testing.T) {
	a := New(64)
	if a.RefCount() != 1 {
		t.Fatalf("RefCount() = %d, want 1", a.RefCount())
	}
	a.Ref()
	if a.RefCount() != 2 {
		t.Fatalf("RefCount() = %d, want 2", a.RefCount())
	}
	if left := a.Unref(); left != 1 {
		t.Fatalf("Unref() = %d, want 1", left)
	}
}

func TestResetRewindsSize(t *testing.T) {
	a := New(16)
	a.Alloc(8)
	a.Alloc(32) // second slab
	if a.Size() != 40 {
		t.Fatalf("Size() = %d, want 40", a.Size())
	}
	a.Reset()
	if a.Size() != 0 {
		t.Fatalf("Size() after Reset = %d, want 0", a.Size())
	}
}

func TestPoolGCResetsUnreferencedArena(t *testing.T) {
	p := NewPool(16, 8)
	a := p.Fresh()
	a.Alloc(32)
	a.Unref() // drop the only outstanding reference besides the pool's implicit one...
	p.GC()
	if p.Generations() != 1 {
		t.Fatalf("Generations() = %d, want 1 (in-place reset)", p.Generations())
	}
}

func TestPoolGCRetiresReferencedArena(t *testing.T) {
	p := NewPool(16, 8)
	a := p.Fresh()
	a.Alloc(32)
	// a is still referenced (RefCount==2: pool's generation slot + caller's Fresh ref)
	p.GC()
	if p.Generations() != 2 {
		t.Fatalf("Generations() = %d, want 2 (retired)", p.Generations())
	}
	if got := p.LiveGenerations(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("LiveGenerations() = %v, want [1]", got)
	}
}

func TestTBufGrowPreservesPrefix(t *testing.T) {
	a := New(64)
	buf := NewTBuf(a, 4)
	buf.Append([]byte("ab"))
	buf.Append([]byte("cdefgh"))
	if string(buf.Bytes()) != "abcdefgh" {
		t.Fatalf("Bytes() = %q", buf.Bytes())
	}
}

func TestTBufReserve(t *testing.T) {
	a := New(64)
	buf := NewTBuf(a, 4)
	dst := buf.Reserve(3)
	copy(dst, "xyz")
	if string(buf.Bytes()) != "xyz" {
		t.Fatalf("Bytes() = %q", buf.Bytes())
	}
}
