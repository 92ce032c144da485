package tracefile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"ticktrace.gg/internal/persistence/tracefile"
	"ticktrace.gg/internal/trace"
	"ticktrace.gg/internal/tracetest"
)

func TestReadPlainAndCompressed(t *testing.T) {
	dir := t.TempDir()
	data := tracetest.Session(tracetest.StandardHeader()).
		PlayerNew(0, trace.PlayerPos{X: 1, Y: 2}).
		Tick(1).
		Bytes()

	plain := filepath.Join(dir, "a.trace")
	if err := os.WriteFile(plain, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := enc.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	packed := filepath.Join(dir, "a.trace.zst")
	if err := os.WriteFile(packed, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, p := range []string{plain, packed} {
		got, err := tracefile.Read(p)
		if err != nil {
			t.Fatalf("Read(%s): %v", p, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("Read(%s): %d bytes, want %d", p, len(got), len(data))
		}
		_, events := tracetest.Decode(t, got)
		if len(events) != 2 {
			t.Fatalf("decode via %s: got %d events want 2", p, len(events))
		}
	}
}

func TestReadRejectsCorruptZstd(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.trace.zst")
	if err := os.WriteFile(p, []byte("not zstd at all"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := tracefile.Read(p); err == nil {
		t.Fatalf("Read accepted corrupt zstd input")
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.trace", "a.trace.zst", "notes.txt", "c.snap"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.trace"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	infos, err := tracefile.List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "a.trace.zst" || infos[1].Name != "b.trace" {
		t.Fatalf("List: %+v", infos)
	}
	if infos[0].Size != 1 {
		t.Fatalf("size: got %d want 1", infos[0].Size)
	}
}

func TestResolve(t *testing.T) {
	if _, err := tracefile.Resolve("/data", "../etc/passwd"); err == nil {
		t.Fatalf("Resolve accepted a traversing name")
	}
	if _, err := tracefile.Resolve("/data", "x/y.trace"); err == nil {
		t.Fatalf("Resolve accepted a nested name")
	}
	if _, err := tracefile.Resolve("/data", "session.log"); err == nil {
		t.Fatalf("Resolve accepted a non-trace name")
	}
	p, err := tracefile.Resolve("/data", "s1.trace.zst")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p != filepath.Join("/data", "s1.trace.zst") {
		t.Fatalf("Resolve: got %q", p)
	}
}
