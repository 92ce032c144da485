package trace

import (
	"testing"
)

// packInt is the wire encoder for test input only; the production tree
// never writes the format.
func packInt(buf []byte, v int32) []byte {
	var first byte
	w := uint32(v)
	if v < 0 {
		first = 0x40
		w = uint32(^v)
	}
	first |= byte(w & 0x3F)
	w >>= 6
	if w == 0 {
		return append(buf, first)
	}
	buf = append(buf, first|0x80)
	for w != 0 {
		c := byte(w & 0x7F)
		w >>= 7
		if w != 0 {
			c |= 0x80
		}
		buf = append(buf, c)
	}
	return buf
}

func packKey(buf []byte, kind ItemKind, client int) []byte {
	return packInt(buf, -int32(client*numItemKinds+int(kind))-1)
}

func testStream(t *testing.T, items []byte) []byte {
	t.Helper()
	doc := `{"version":"1","map_name":"ctf1","map_size":"1024","map_crc":"deadbeef"}`
	b := append([]byte{}, Magic[:]...)
	b = packInt(b, int32(len(doc)))
	b = append(b, doc...)
	return append(b, items...)
}

func testReader(t *testing.T, items []byte) *Reader {
	t.Helper()
	r, err := NewReader(testStream(t, items))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return r
}

func TestInvalidClientLeavesTableUntouched(t *testing.T) {
	items := packKey(nil, ItemPlayerNew, 0)
	items = packInt(items, 11)
	items = packInt(items, 22)
	items = packKey(items, ItemPlayerNew, MaxClients)

	r := testReader(t, items)
	if _, err := r.Next(); err != nil {
		t.Fatalf("first record: %v", err)
	}
	te := wantCode(t, nextErr(t, r), CodeInvalidClientID)
	if te.Client != MaxClients {
		t.Fatalf("client: got %d want %d", te.Client, MaxClients)
	}

	if r.players[0] != (playerSlot{present: true, pos: PlayerPos{X: 11, Y: 22}}) {
		t.Fatalf("client 0 slot changed: %+v", r.players[0])
	}
	for c := 1; c < MaxClients; c++ {
		if r.players[c] != (playerSlot{}) || r.inputs[c] != (inputSlot{}) {
			t.Fatalf("client %d slot changed", c)
		}
	}
}

func TestTruncatedRecordCommitsNothing(t *testing.T) {
	items := packKey(nil, ItemPlayerNew, 0)
	items = packInt(items, 11)
	items = packInt(items, 22)
	items = packKey(items, ItemPlayerDiff, 0)
	items = packInt(items, 100) // Y delta missing

	r := testReader(t, items)
	if _, err := r.Next(); err != nil {
		t.Fatalf("first record: %v", err)
	}
	te := wantCode(t, nextErr(t, r), CodeUnexpectedEnd)
	if te.Client != 0 || te.Kind != ItemPlayerDiff {
		t.Fatalf("context: got client=%d kind=%s", te.Client, te.Kind)
	}
	if r.players[0].pos != (PlayerPos{X: 11, Y: 22}) {
		t.Fatalf("partial diff committed: %+v", r.players[0].pos)
	}
}

func TestPlayerOldClearsBothSlots(t *testing.T) {
	items := packKey(nil, ItemPlayerNew, 5)
	items = packInt(items, 1)
	items = packInt(items, 2)
	items = packKey(items, ItemInputNew, 5)
	for i := 0; i < numInputFields; i++ {
		items = packInt(items, int32(i))
	}
	items = packKey(items, ItemPlayerOld, 5)

	r := testReader(t, items)
	for i := 0; i < 3; i++ {
		if _, err := r.Next(); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if r.players[5] != (playerSlot{}) {
		t.Fatalf("player slot not cleared: %+v", r.players[5])
	}
	if r.inputs[5] != (inputSlot{}) {
		t.Fatalf("input slot not cleared: %+v", r.inputs[5])
	}
}

func nextErr(t *testing.T, r *Reader) error {
	t.Helper()
	_, err := r.Next()
	if err == nil {
		t.Fatalf("Next unexpectedly succeeded")
	}
	return err
}
