package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"

	"ticktrace.gg/internal/persistence/export"
	"ticktrace.gg/internal/persistence/tracefile"
	"ticktrace.gg/internal/trace"
	"ticktrace.gg/internal/traceproto"
)

func main() {
	var (
		format   = flag.String("format", "text", "output format: text|jsonl")
		outPath  = flag.String("o", "", "write a compressed jsonl export to this path instead of stdout")
		fromTick = flag.Int("from", 0, "skip events below this tick")
		toTick   = flag.Int("to", 0, "stop after this tick (0 = to the end)")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tracedump [flags] <session.trace[.zst]>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	data, err := tracefile.Read(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	r, err := trace.NewReader(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}

	switch {
	case *outPath != "":
		dumpExport(r, path, *outPath, int32(*fromTick), int32(*toTick), len(data))
	case *format == "jsonl":
		dumpJSONL(r, path, int32(*fromTick), int32(*toTick))
	case *format == "text":
		dumpText(r, path, int32(*fromTick), int32(*toTick), len(data))
	default:
		fmt.Fprintln(os.Stderr, "unknown -format:", *format)
		os.Exit(2)
	}
}

// each drives the decode loop with the tick window applied. The returned
// count is the number of events handed to fn.
func each(r *trace.Reader, from, to int32, fn func(trace.Event) error) (int, error) {
	n := 0
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if to != 0 && ev.Tick > to {
			return n, nil
		}
		if ev.Tick < from {
			continue
		}
		if err := fn(ev); err != nil {
			return n, err
		}
		n++
	}
}

func dumpText(r *trace.Reader, path string, from, to int32, size int) {
	h := r.Header()
	fmt.Printf("%s: version=%d map=%s map_size=%d map_crc=%08x (%s)\n",
		path, h.Version, h.MapName, h.MapSize, h.MapCRC, humanize.IBytes(uint64(size)))
	n, err := each(r, from, to, func(ev trace.Event) error {
		printEvent(ev)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	fmt.Printf("end: events=%s final_tick=%d\n", humanize.Comma(int64(n)), r.Tick())
}

func printEvent(ev trace.Event) {
	switch ev.Kind {
	case trace.EventTick:
		fmt.Printf("%8d  tick +%d\n", ev.Tick, ev.Delta)
	case trace.EventPlayerNew:
		fmt.Printf("%8d  player_new  c=%-2d pos=(%d,%d)\n", ev.Tick, ev.Client, ev.Pos.X, ev.Pos.Y)
	case trace.EventPlayerDiff:
		fmt.Printf("%8d  player_diff c=%-2d pos=(%d,%d) delta=(%d,%d)\n",
			ev.Tick, ev.Client, ev.Pos.X, ev.Pos.Y, ev.PosDelta.X, ev.PosDelta.Y)
	case trace.EventPlayerOld:
		fmt.Printf("%8d  player_old  c=%-2d\n", ev.Tick, ev.Client)
	case trace.EventInputNew, trace.EventInputDiff:
		fmt.Printf("%8d  %-11s c=%-2d dir=%d target=(%d,%d) jump=%d fire=%d hook=%d\n",
			ev.Tick, ev.Kind, ev.Client, ev.Input.Direction, ev.Input.TargetX, ev.Input.TargetY,
			ev.Input.Jump, ev.Input.Fire, ev.Input.Hook)
	}
}

func dumpJSONL(r *trace.Reader, path string, from, to int32) {
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(traceproto.FromHeader(path, r.Header()))
	n, err := each(r, from, to, func(ev trace.Event) error {
		return enc.Encode(traceproto.FromEvent(ev))
	})
	if err != nil {
		_ = enc.Encode(traceproto.ErrorMsg{
			Type:            traceproto.TypeError,
			ProtocolVersion: traceproto.Version,
			Code:            traceproto.CodeFor(err),
			Message:         err.Error(),
			Offset:          traceproto.OffsetFor(err),
		})
		os.Exit(1)
	}
	_ = enc.Encode(traceproto.EndMsg{
		Type:            traceproto.TypeEnd,
		ProtocolVersion: traceproto.Version,
		FinalTick:       r.Tick(),
		Events:          n,
	})
}

func dumpExport(r *trace.Reader, path, outPath string, from, to int32, size int) {
	w, err := export.NewEventWriter(outPath, path, r.Header())
	if err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(1)
	}
	n, err := each(r, from, to, func(ev trace.Event) error {
		return w.WriteEvent(ev)
	})
	if err != nil {
		_ = w.Abort(traceproto.CodeFor(err), err.Error(), traceproto.OffsetFor(err))
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	if err := w.Finish(r.Tick()); err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(1)
	}
	fmt.Printf("exported %s: events=%s final_tick=%d in=%s\n",
		outPath, humanize.Comma(int64(n)), r.Tick(), humanize.IBytes(uint64(size)))
}
