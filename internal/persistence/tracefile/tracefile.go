package tracefile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// MaxTraceBytes caps how much of one trace is held resident after
// decompression. Traces are untrusted input.
const MaxTraceBytes = 1 << 30

// Read loads one trace fully into memory, transparently decompressing
// *.zst files.
func Read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		defer dec.Close()
		r = dec
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxTraceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if len(data) > MaxTraceBytes {
		return nil, fmt.Errorf("%s: trace exceeds %d bytes", filepath.Base(path), MaxTraceBytes)
	}
	return data, nil
}

// Info describes one trace file in a session directory.
type Info struct {
	Name string
	Size int64
}

// List returns the trace files in dir (*.trace and *.trace.zst), sorted
// by name.
func List(dir string) ([]Info, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || !IsTraceName(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{Name: e.Name(), Size: fi.Size()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// IsTraceName reports whether name looks like a trace file.
func IsTraceName(name string) bool {
	return strings.HasSuffix(name, ".trace") || strings.HasSuffix(name, ".trace.zst")
}

// Resolve joins a client-supplied name onto dir. Names never traverse:
// anything with a path separator is rejected.
func Resolve(dir, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || !IsTraceName(name) {
		return "", fmt.Errorf("bad trace name %q", name)
	}
	return filepath.Join(dir, name), nil
}
