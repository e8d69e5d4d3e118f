package limits

import "testing"

func TestNewTableDefaults(t *testing.T) {
	tbl := NewTable()

	r, ok := tbl.Get(RlimitNoFile)
	if !ok {
		t.Fatalf("RlimitNoFile missing from a fresh table")
	}
	if r.Cur() != 1024 || r.Max() != 1024 {
		t.Fatalf("RlimitNoFile = {%d,%d}, want {1024,1024}", r.Cur(), r.Max())
	}

	as, ok := tbl.Get(RlimitAS)
	if !ok || as.Cur() != Infinity || as.Max() != Infinity {
		t.Fatalf("RlimitAS = {%d,%d}, want unbounded", as.Cur(), as.Max())
	}

	stk, ok := tbl.Get(RlimitStack)
	if !ok || stk.Cur() != 8<<20 || stk.Max() != Infinity {
		t.Fatalf("RlimitStack = {%d,%d}, want {8MB,Infinity}", stk.Cur(), stk.Max())
	}
}

func TestGetUnknownResource(t *testing.T) {
	tbl := NewTable()
	if _, ok := tbl.Get(999); ok {
		t.Fatalf("Get(999) reported ok for a resource never set")
	}
}

func TestSetOverwritesAndPersists(t *testing.T) {
	tbl := NewTable()
	var want Rlimit64
	want.Wcur(256)
	want.Wmax(512)
	tbl.Set(RlimitNoFile, want)

	got, ok := tbl.Get(RlimitNoFile)
	if !ok || got.Cur() != 256 || got.Max() != 512 {
		t.Fatalf("Get after Set = {%d,%d}, want {256,512}", got.Cur(), got.Max())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := NewTable()
	clone := orig.Clone()

	var changed Rlimit64
	changed.Wcur(1)
	changed.Wmax(1)
	clone.Set(RlimitNoFile, changed)

	origVal, _ := orig.Get(RlimitNoFile)
	if origVal.Cur() != 1024 {
		t.Fatalf("mutating the clone changed the original: Cur() = %d, want 1024", origVal.Cur())
	}

	cloneVal, _ := clone.Get(RlimitNoFile)
	if cloneVal.Cur() != 1 {
		t.Fatalf("clone did not keep its own override: Cur() = %d, want 1", cloneVal.Cur())
	}
}

func TestRlimitBytesRoundTrip(t *testing.T) {
	var r Rlimit64
	r.Wcur(0x1122334455667788)
	r.Wmax(Infinity)

	decoded := RlimitFromBytes(r.Bytes())
	if decoded.Cur() != r.Cur() || decoded.Max() != r.Max() {
		t.Fatalf("round trip = {%#x,%#x}, want {%#x,%#x}",
			decoded.Cur(), decoded.Max(), r.Cur(), r.Max())
	}
}
