package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"ticktrace.gg/internal/trace"
	"ticktrace.gg/internal/traceproto"
)

// Session index states.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Appearance is one client's lifetime inside a session: the tick of the
// first record naming the client through the tick of the last one.
type Appearance struct {
	Client    int
	FirstTick int32
	LastTick  int32
}

// Summary is the index row for one trace. A failed decode still produces a
// summary; Error carries the code and the counters cover the prefix that
// decoded.
type Summary struct {
	Path      string
	Header    trace.Header
	Events    int
	FinalTick int32
	Clients   int
	Status    string
	Error     string

	Appearances []Appearance
}

// Summarize decodes one trace into its index row.
func Summarize(path string, data []byte) Summary {
	s := Summary{Path: path, Status: StatusOK}
	r, err := trace.NewReader(data)
	if err != nil {
		s.Status = StatusError
		s.Error = traceproto.CodeFor(err)
		return s
	}
	s.Header = r.Header()

	first := map[int]int32{}
	last := map[int]int32{}
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.Status = StatusError
			s.Error = traceproto.CodeFor(err)
			break
		}
		s.Events++
		if ev.Client >= 0 {
			if _, ok := first[ev.Client]; !ok {
				first[ev.Client] = ev.Tick
			}
			last[ev.Client] = ev.Tick
		}
	}
	s.FinalTick = r.Tick()
	s.Clients = len(first)
	for c, ft := range first {
		s.Appearances = append(s.Appearances, Appearance{Client: c, FirstTick: ft, LastTick: last[c]})
	}
	sort.Slice(s.Appearances, func(i, j int) bool { return s.Appearances[i].Client < s.Appearances[j].Client })
	return s
}

type SQLiteIndex struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteIndex{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			path TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			map_name TEXT NOT NULL,
			map_size INTEGER NOT NULL,
			map_crc TEXT NOT NULL,
			events INTEGER NOT NULL,
			final_tick INTEGER NOT NULL,
			clients INTEGER NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			indexed_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_map ON sessions(map_name);`,
		`CREATE TABLE IF NOT EXISTS appearances (
			session TEXT NOT NULL,
			client INTEGER NOT NULL,
			first_tick INTEGER NOT NULL,
			last_tick INTEGER NOT NULL,
			PRIMARY KEY (session, client)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_appearances_client ON appearances(client, session);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// Put upserts one summary and its appearances in a single transaction.
func (s *SQLiteIndex) Put(sum Summary) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO sessions(path,version,map_name,map_size,map_crc,events,final_tick,clients,status,error,indexed_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		sum.Path,
		int64(sum.Header.Version),
		sum.Header.MapName,
		int64(sum.Header.MapSize),
		fmt.Sprintf("%08x", sum.Header.MapCRC),
		sum.Events,
		int64(sum.FinalTick),
		sum.Clients,
		sum.Status,
		sum.Error,
		now,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM appearances WHERE session = ?`, sum.Path); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO appearances(session,client,first_tick,last_tick) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, a := range sum.Appearances {
		if _, err := stmt.Exec(sum.Path, a.Client, int64(a.FirstTick), int64(a.LastTick)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Sessions lists all indexed summaries ordered by path. Appearances are not
// loaded; that table is there for direct querying.
func (s *SQLiteIndex) Sessions() ([]Summary, error) {
	rows, err := s.db.Query(
		`SELECT path,version,map_name,map_size,map_crc,events,final_tick,clients,status,error
		 FROM sessions ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum       Summary
			version   int64
			mapSize   int64
			crc       string
			finalTick int64
			errStr    sql.NullString
		)
		if err := rows.Scan(
			&sum.Path, &version, &sum.Header.MapName, &mapSize, &crc,
			&sum.Events, &finalTick, &sum.Clients, &sum.Status, &errStr,
		); err != nil {
			return nil, err
		}
		sum.Header.Version = int32(version)
		sum.Header.MapSize = uint32(mapSize)
		if _, err := fmt.Sscanf(crc, "%08x", &sum.Header.MapCRC); err != nil {
			return nil, fmt.Errorf("bad map_crc %q for %s: %w", crc, sum.Path, err)
		}
		sum.FinalTick = int32(finalTick)
		sum.Error = errStr.String
		out = append(out, sum)
	}
	return out, rows.Err()
}
