package export

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"ticktrace.gg/internal/trace"
	"ticktrace.gg/internal/traceproto"
)

// JSONLZstdWriter writes one JSON value per line into a zstd-compressed
// file, replacing whatever was at path.
type JSONLZstdWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) (*JSONLZstdWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &JSONLZstdWriter{f: f, enc: enc, w: bufio.NewWriterSize(enc, 128*1024)}, nil
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

// EventWriter exports one decoded session: a SESSION line, one EVENT line
// per record, then an END or ERROR line.
type EventWriter struct {
	w      *JSONLZstdWriter
	events int
}

func NewEventWriter(path, session string, h trace.Header) (*EventWriter, error) {
	w, err := NewJSONLZstdWriter(path)
	if err != nil {
		return nil, err
	}
	if err := w.Write(traceproto.FromHeader(session, h)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &EventWriter{w: w}, nil
}

func (e *EventWriter) WriteEvent(ev trace.Event) error {
	if err := e.w.Write(traceproto.FromEvent(ev)); err != nil {
		return err
	}
	e.events++
	return nil
}

// Finish appends the END line and closes the file.
func (e *EventWriter) Finish(finalTick int32) error {
	end := traceproto.EndMsg{
		Type:            traceproto.TypeEnd,
		ProtocolVersion: traceproto.Version,
		FinalTick:       finalTick,
		Events:          e.events,
	}
	if err := e.w.Write(end); err != nil {
		_ = e.w.Close()
		return err
	}
	return e.w.Close()
}

// Abort appends an ERROR line and closes the file.
func (e *EventWriter) Abort(code, message string, offset int) error {
	_ = e.w.Write(traceproto.ErrorMsg{
		Type:            traceproto.TypeError,
		ProtocolVersion: traceproto.Version,
		Code:            code,
		Message:         message,
		Offset:          offset,
	})
	return e.w.Close()
}
