package tracetest

import (
	"encoding/json"
	"io"
	"testing"

	"ticktrace.gg/internal/trace"
)

// Builder assembles trace byte streams for tests. It is the encode side of
// the format and lives here on purpose: the production tree only decodes.
type Builder struct {
	buf []byte
}

func New() *Builder {
	return &Builder{}
}

// Session starts a builder with magic and header already appended.
func Session(h trace.Header) *Builder {
	return New().Magic().Header(h)
}

// StandardHeader is the header most decoder tests start from.
func StandardHeader() trace.Header {
	return trace.Header{Version: 1, MapName: "ctf1", MapSize: 1024, MapCRC: 0xdeadbeef}
}

// Bytes returns the assembled stream.
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Raw appends bytes verbatim.
func (b *Builder) Raw(p ...byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

// Int appends one signed varint in wire form.
func (b *Builder) Int(v int32) *Builder {
	var first byte
	w := uint32(v)
	if v < 0 {
		first = 0x40
		w = uint32(^v)
	}
	first |= byte(w & 0x3F)
	w >>= 6
	if w == 0 {
		return b.Raw(first)
	}
	b.Raw(first | 0x80)
	for w != 0 {
		c := byte(w & 0x7F)
		w >>= 7
		if w != 0 {
			c |= 0x80
		}
		b.Raw(c)
	}
	return b
}

// String appends one length-prefixed payload.
func (b *Builder) String(s []byte) *Builder {
	b.Int(int32(len(s)))
	return b.Raw(s...)
}

// Magic appends the 16 identifier bytes.
func (b *Builder) Magic() *Builder {
	return b.Raw(trace.Magic[:]...)
}

// Header appends h in wire shape.
func (b *Builder) Header(h trace.Header) *Builder {
	doc, _ := json.Marshal(h)
	return b.String(doc)
}

// HeaderJSON appends an arbitrary document as the header payload.
func (b *Builder) HeaderJSON(doc string) *Builder {
	return b.String([]byte(doc))
}

// Key appends just the key for a typed item, with no payload. Useful for
// truncation cases.
func (b *Builder) Key(kind trace.ItemKind, client int) *Builder {
	return b.Int(itemKey(kind, client))
}

// Tick appends a tick advance.
func (b *Builder) Tick(delta int32) *Builder {
	return b.Int(delta)
}

func (b *Builder) PlayerNew(client int, pos trace.PlayerPos) *Builder {
	return b.Key(trace.ItemPlayerNew, client).Int(pos.X).Int(pos.Y)
}

func (b *Builder) PlayerDiff(client int, d trace.PlayerPos) *Builder {
	return b.Key(trace.ItemPlayerDiff, client).Int(d.X).Int(d.Y)
}

func (b *Builder) PlayerOld(client int) *Builder {
	return b.Key(trace.ItemPlayerOld, client)
}

func (b *Builder) InputNew(client int, in trace.PlayerInput) *Builder {
	return b.Key(trace.ItemInputNew, client).inputFields(in)
}

func (b *Builder) InputDiff(client int, d trace.PlayerInput) *Builder {
	return b.Key(trace.ItemInputDiff, client).inputFields(d)
}

func (b *Builder) inputFields(in trace.PlayerInput) *Builder {
	for _, v := range [...]int32{
		in.Direction, in.TargetX, in.TargetY, in.Jump, in.Fire,
		in.Hook, in.PlayerFlags, in.WantedWeapon, in.NextWeapon, in.PrevWeapon,
	} {
		b.Int(v)
	}
	return b
}

func itemKey(kind trace.ItemKind, client int) int32 {
	return -int32(client*5+int(kind)) - 1
}

// Decode drives a full pass over data and fails the test on any decode
// error.
func Decode(t *testing.T, data []byte) (trace.Header, []trace.Event) {
	t.Helper()
	r, err := trace.NewReader(data)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var events []trace.Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next (event %d): %v", len(events), err)
		}
		events = append(events, ev)
	}
	return r.Header(), events
}
