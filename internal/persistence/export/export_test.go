package export

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"ticktrace.gg/internal/trace"
	"ticktrace.gg/internal/tracetest"
)

func readLines(t *testing.T, path string) [][]byte {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var lines [][]byte
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := make([]byte, len(sc.Bytes()))
		copy(line, sc.Bytes())
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return lines
}

func TestEventWriterRoundTrip(t *testing.T) {
	data := tracetest.Session(tracetest.StandardHeader()).
		Tick(0).
		PlayerNew(3, trace.PlayerPos{X: 10, Y: 20}).
		InputNew(3, trace.PlayerInput{Direction: 1}).
		Tick(2).
		PlayerOld(3).
		Bytes()

	r, err := trace.NewReader(data)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out", "run1.jsonl.zst")
	w, err := NewEventWriter(path, "run1.trace", r.Header())
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	var events int
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if err := w.WriteEvent(ev); err != nil {
			t.Fatalf("write event: %v", err)
		}
		events++
	}
	if err := w.Finish(r.Tick()); err != nil {
		t.Fatalf("finish: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != events+2 {
		t.Fatalf("got %d lines want %d", len(lines), events+2)
	}

	var session struct {
		Type    string `json:"type"`
		Session string `json:"session"`
		MapName string `json:"map_name"`
		MapCRC  string `json:"map_crc"`
	}
	if err := json.Unmarshal(lines[0], &session); err != nil {
		t.Fatalf("session line: %v", err)
	}
	if session.Type != "SESSION" || session.Session != "run1.trace" {
		t.Fatalf("bad session line: %+v", session)
	}
	if session.MapName != "ctf1" || session.MapCRC != "deadbeef" {
		t.Fatalf("bad session header: %+v", session)
	}

	wantKinds := []string{"tick", "player_new", "input_new", "tick", "player_old"}
	for i, want := range wantKinds {
		var ev struct {
			Type string `json:"type"`
			Kind string `json:"kind"`
			Tick int32  `json:"tick"`
		}
		if err := json.Unmarshal(lines[1+i], &ev); err != nil {
			t.Fatalf("event line %d: %v", i, err)
		}
		if ev.Type != "EVENT" || ev.Kind != want {
			t.Fatalf("line %d: got %s/%s want EVENT/%s", i, ev.Type, ev.Kind, want)
		}
	}

	var end struct {
		Type      string `json:"type"`
		FinalTick int32  `json:"final_tick"`
		Events    int    `json:"events"`
	}
	if err := json.Unmarshal(lines[len(lines)-1], &end); err != nil {
		t.Fatalf("end line: %v", err)
	}
	if end.Type != "END" || end.FinalTick != 2 || end.Events != events {
		t.Fatalf("bad end line: %+v", end)
	}
}

func TestEventWriterAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl.zst")
	w, err := NewEventWriter(path, "bad.trace", tracetest.StandardHeader())
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if err := w.Abort("E_UNEXPECTED_END", "unexpected end of trace", 44); err != nil {
		t.Fatalf("abort: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("got %d lines want 2", len(lines))
	}
	var msg struct {
		Type   string `json:"type"`
		Code   string `json:"code"`
		Offset int    `json:"offset"`
	}
	if err := json.Unmarshal(lines[1], &msg); err != nil {
		t.Fatalf("error line: %v", err)
	}
	if msg.Type != "ERROR" || msg.Code != "E_UNEXPECTED_END" || msg.Offset != 44 {
		t.Fatalf("bad error line: %+v", msg)
	}
}

func TestWriterTruncatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trunc.jsonl.zst")
	for i := 0; i < 2; i++ {
		w, err := NewJSONLZstdWriter(path)
		if err != nil {
			t.Fatalf("writer: %v", err)
		}
		if err := w.Write(map[string]int{"run": i}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("got %d lines want 1", len(lines))
	}
}
