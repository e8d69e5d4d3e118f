package boot

import (
	"encoding/binary"
	"testing"

	"rv39kernel/task"
)

// buildMinimalELF assembles the smallest ELF64 RISC-V executable
// debug/elf.NewFile will accept. Duplicated from the other packages'
// own test fixtures since it isn't exported.
func buildMinimalELF(vaddr uint64, code []byte) []byte {
	const (
		ehsize  = 64
		phentsz = 56
	)
	phoff := uint64(ehsize)
	dataOff := phoff + phentsz
	buf := make([]byte, dataOff+uint64(len(code)))

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2
	buf[5] = 1
	buf[6] = 1

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)
	le.PutUint16(buf[18:], 243)
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[24:], vaddr)
	le.PutUint64(buf[32:], phoff)
	le.PutUint64(buf[40:], 0)
	le.PutUint32(buf[48:], 0)
	le.PutUint16(buf[52:], ehsize)
	le.PutUint16(buf[54:], phentsz)
	le.PutUint16(buf[56:], 1)
	le.PutUint16(buf[58:], 0)
	le.PutUint16(buf[60:], 0)
	le.PutUint16(buf[62:], 0)

	p := buf[phoff:]
	le.PutUint32(p[0:], 1)
	le.PutUint32(p[4:], 5)
	le.PutUint64(p[8:], dataOff)
	le.PutUint64(p[16:], vaddr)
	le.PutUint64(p[24:], vaddr)
	le.PutUint64(p[32:], uint64(len(code)))
	le.PutUint64(p[40:], uint64(len(code)))
	le.PutUint64(p[48:], 0x1000)

	copy(buf[dataOff:], code)
	return buf
}

func testELF() []byte {
	return buildMinimalELF(0x1000, make([]byte, 16))
}

// TestBootstrap is the only test in this package allowed to call
// Bootstrap: frame.Allocator.AddRegion (which Bootstrap calls) panics
// on a second call, so every assertion about a fully-booted machine
// has to live in this one test.
func TestBootstrap(t *testing.T) {
	cfg := Config{
		HartCount: 1,
		RAMBase:   0,
		RAMBytes:  1 << 20,
		InitELF:   testELF(),
	}

	it, err := Bootstrap(cfg)
	if err != 0 {
		t.Fatalf("Bootstrap: %v", err)
	}
	if it == nil {
		t.Fatalf("Bootstrap returned a nil task with no error")
	}
	if it.State() != task.Runnable {
		t.Fatalf("init task state = %v, want Runnable", it.State())
	}
	if it.Pid != 1 || it.Tid != 1 {
		t.Fatalf("init task pid/tid = %d/%d, want 1/1", it.Pid, it.Tid)
	}
	if it.Parent() != nil {
		t.Fatalf("init task has a parent: %v", it.Parent())
	}

	// A second Bootstrap call must panic, since it would re-seed an
	// already-seeded frame allocator.
	defer func() {
		if recover() == nil {
			t.Fatalf("second Bootstrap call did not panic")
		}
	}()
	Bootstrap(cfg)
}

func TestConfigFieldsRoundTrip(t *testing.T) {
	cfg := Config{
		HartCount: 4,
		RAMBase:   0x8000_0000,
		RAMBytes:  1 << 30,
		InitArgv:  []string{"init"},
		InitEnvp:  []string{"PATH=/"},
	}
	if cfg.HartCount != 4 || cfg.RAMBase != 0x8000_0000 || cfg.RAMBytes != 1<<30 {
		t.Fatalf("Config did not preserve its fields: %+v", cfg)
	}
	if len(cfg.InitArgv) != 1 || cfg.InitArgv[0] != "init" {
		t.Fatalf("InitArgv not preserved: %v", cfg.InitArgv)
	}
}
