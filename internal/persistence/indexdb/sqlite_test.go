package indexdb

import (
	"path/filepath"
	"testing"

	"ticktrace.gg/internal/trace"
	"ticktrace.gg/internal/tracetest"
)

func TestSummarize(t *testing.T) {
	data := tracetest.Session(tracetest.StandardHeader()).
		Tick(10).
		PlayerNew(2, trace.PlayerPos{X: 1, Y: 2}).
		InputNew(5, trace.PlayerInput{Jump: 1}).
		Tick(5).
		PlayerDiff(2, trace.PlayerPos{X: 3, Y: 4}).
		Tick(1).
		PlayerOld(2).
		Bytes()

	sum := Summarize("a.trace", data)
	if sum.Status != StatusOK || sum.Error != "" {
		t.Fatalf("status %q error %q", sum.Status, sum.Error)
	}
	if sum.Events != 7 {
		t.Fatalf("events = %d want 7", sum.Events)
	}
	if sum.FinalTick != 16 {
		t.Fatalf("final tick = %d want 16", sum.FinalTick)
	}
	if sum.Clients != 2 {
		t.Fatalf("clients = %d want 2", sum.Clients)
	}
	want := []Appearance{
		{Client: 2, FirstTick: 10, LastTick: 16},
		{Client: 5, FirstTick: 10, LastTick: 10},
	}
	if len(sum.Appearances) != len(want) {
		t.Fatalf("appearances = %v", sum.Appearances)
	}
	for i, a := range sum.Appearances {
		if a != want[i] {
			t.Fatalf("appearance %d = %+v want %+v", i, a, want[i])
		}
	}
}

func TestSummarizeKeepsDecodedPrefixOnError(t *testing.T) {
	data := tracetest.Session(tracetest.StandardHeader()).
		Tick(3).
		PlayerDiff(5, trace.PlayerPos{X: 1, Y: 1}).
		Bytes()

	sum := Summarize("bad.trace", data)
	if sum.Status != StatusError {
		t.Fatalf("status = %q want error", sum.Status)
	}
	if sum.Error != "E_PLAYER_DIFF_WITHOUT_NEW" {
		t.Fatalf("error = %q", sum.Error)
	}
	if sum.Events != 1 || sum.FinalTick != 3 {
		t.Fatalf("events=%d final=%d", sum.Events, sum.FinalTick)
	}
	if sum.Header.MapName != "ctf1" {
		t.Fatalf("header not kept: %+v", sum.Header)
	}
}

func TestSummarizeBadMagic(t *testing.T) {
	sum := Summarize("junk.trace", []byte("not a trace at all"))
	if sum.Status != StatusError || sum.Error != "E_WRONG_MAGIC" {
		t.Fatalf("status=%q error=%q", sum.Status, sum.Error)
	}
	if sum.Events != 0 || sum.Clients != 0 {
		t.Fatalf("counters not zero: %+v", sum)
	}
}

func TestPutAndSessions(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "idx", "traces.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	ok := Summarize("a.trace", tracetest.Session(tracetest.StandardHeader()).
		Tick(0).
		PlayerNew(0, trace.PlayerPos{X: 9, Y: 9}).
		Bytes())
	bad := Summarize("b.trace", tracetest.Session(tracetest.StandardHeader()).
		PlayerOld(1).
		Bytes())

	if err := idx.Put(ok); err != nil {
		t.Fatalf("put ok: %v", err)
	}
	if err := idx.Put(bad); err != nil {
		t.Fatalf("put bad: %v", err)
	}

	got, err := idx.Sessions()
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sessions want 2", len(got))
	}
	if got[0].Path != "a.trace" || got[1].Path != "b.trace" {
		t.Fatalf("order: %s, %s", got[0].Path, got[1].Path)
	}
	if got[0].Status != StatusOK || got[0].Events != 2 || got[0].Clients != 1 {
		t.Fatalf("a.trace row: %+v", got[0])
	}
	if got[0].Header != tracetest.StandardHeader() {
		t.Fatalf("a.trace header: %+v", got[0].Header)
	}
	if got[1].Status != StatusError || got[1].Error != "E_PLAYER_OLD_WITHOUT_NEW" {
		t.Fatalf("b.trace row: %+v", got[1])
	}
}

func TestPutReplacesAppearances(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "traces.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	sum := Summary{Path: "x.trace", Status: StatusOK, Appearances: []Appearance{
		{Client: 0, FirstTick: 0, LastTick: 5},
		{Client: 1, FirstTick: 2, LastTick: 3},
	}}
	if err := idx.Put(sum); err != nil {
		t.Fatalf("put: %v", err)
	}
	sum.Appearances = sum.Appearances[:1]
	if err := idx.Put(sum); err != nil {
		t.Fatalf("re-put: %v", err)
	}

	var n int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM appearances WHERE session = 'x.trace'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("appearances = %d want 1", n)
	}
}
