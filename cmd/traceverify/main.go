package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"

	"ticktrace.gg/internal/mapcheck"
	"ticktrace.gg/internal/persistence/tracefile"
	"ticktrace.gg/internal/trace"
)

func main() {
	var (
		mapsPath = flag.String("maps", "", "map allowlist to verify headers against (optional)")
		quiet    = flag.Bool("q", false, "only report failures")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: traceverify [flags] <session.trace[.zst]>...")
		os.Exit(2)
	}

	var allow mapcheck.Allowlist
	haveAllow := false
	if *mapsPath != "" {
		a, err := mapcheck.Load(*mapsPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "maps:", err)
			os.Exit(1)
		}
		allow = a
		haveAllow = true
	}

	failed := 0
	for _, path := range flag.Args() {
		if err := verify(path, allow, haveAllow, *quiet); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d failed\n", failed, flag.NArg())
		os.Exit(1)
	}
}

func verify(path string, allow mapcheck.Allowlist, haveAllow, quiet bool) error {
	data, err := tracefile.Read(path)
	if err != nil {
		return err
	}
	r, err := trace.NewReader(data)
	if err != nil {
		return err
	}
	h := r.Header()
	if haveAllow {
		if err := allow.Verify(h); err != nil {
			return err
		}
	}

	var (
		events  int
		kinds   [6]int
		present int
		peak    int
	)
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		events++
		kinds[ev.Kind]++
		switch ev.Kind {
		case trace.EventPlayerNew:
			present++
			if present > peak {
				peak = present
			}
		case trace.EventPlayerOld:
			present--
		}
	}

	if quiet {
		return nil
	}
	fmt.Printf("%s: ok map=%s events=%s final_tick=%d peak_clients=%d\n",
		path, h.MapName, humanize.Comma(int64(events)), r.Tick(), peak)
	fmt.Printf("  ticks=%d player_new=%d player_diff=%d player_old=%d input_new=%d input_diff=%d\n",
		kinds[trace.EventTick], kinds[trace.EventPlayerNew], kinds[trace.EventPlayerDiff],
		kinds[trace.EventPlayerOld], kinds[trace.EventInputNew], kinds[trace.EventInputDiff])
	return nil
}
