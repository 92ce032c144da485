package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/remeh/sizedwaitgroup"

	"ticktrace.gg/internal/persistence/indexdb"
	"ticktrace.gg/internal/persistence/tracefile"
	"ticktrace.gg/internal/traceproto"
)

func main() {
	var (
		dataDir = flag.String("data", "./data/traces", "directory of session traces")
		dbPath  = flag.String("db", "./data/traces.db", "sqlite index path")
		workers = flag.Int("workers", 4, "parallel decoders")
		list    = flag.Bool("list", false, "print the index after writing")
	)
	flag.Parse()

	infos, err := tracefile.List(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	defer idx.Close()

	if *workers < 1 {
		*workers = 1
	}
	var okCount, badCount atomic.Int64
	swg := sizedwaitgroup.New(*workers)
	for _, in := range infos {
		swg.Add()
		go func(name string) {
			defer swg.Done()
			sum := summarizeFile(*dataDir, name)
			if err := idx.Put(sum); err != nil {
				fmt.Fprintf(os.Stderr, "%s: index: %v\n", name, err)
				badCount.Add(1)
				return
			}
			if sum.Status == indexdb.StatusOK {
				okCount.Add(1)
			} else {
				fmt.Fprintf(os.Stderr, "%s: %s\n", name, sum.Error)
				badCount.Add(1)
			}
		}(in.Name)
	}
	swg.Wait()

	fmt.Printf("indexed %d traces: %d ok, %d failed (db=%s)\n",
		len(infos), okCount.Load(), badCount.Load(), *dbPath)

	if *list {
		printIndex(idx)
	}
}

func summarizeFile(dir, name string) indexdb.Summary {
	data, err := tracefile.Read(filepath.Join(dir, name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: read: %v\n", name, err)
		return indexdb.Summary{Path: name, Status: indexdb.StatusError, Error: traceproto.ErrInternal}
	}
	return indexdb.Summarize(name, data)
}

func printIndex(idx *indexdb.SQLiteIndex) {
	sums, err := idx.Sessions()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sessions:", err)
		os.Exit(1)
	}
	for _, s := range sums {
		status := s.Status
		if s.Status == indexdb.StatusError {
			status = "error(" + s.Error + ")"
		}
		fmt.Printf("%-40s map=%-12s events=%-10s final_tick=%-10d clients=%-3d %s\n",
			s.Path, s.Header.MapName, humanize.Comma(int64(s.Events)), s.FinalTick, s.Clients, status)
	}
}
