package engine

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// fetchConcurrency bounds parallel remote fetches within one execution pass.
const fetchConcurrency = 4

// RemoteTable names a remote columnar file to register into the catalog.
type RemoteTable struct {
	URL  string
	Name string
}

// LoadRemoteTable fetches the columnar file at url and registers it in the
// catalog under tableName, replacing any existing table of that name.
func (s *Session) LoadRemoteTable(ctx context.Context, url, tableName string) error {
	buf, err := s.fetch(ctx, url)
	if err != nil {
		return codeErrorf(CodeLoadFailed, "fetch %s: %v", url, err)
	}
	return s.RegisterBuffer(ctx, tableName, buf)
}

// LoadRemoteTables registers a set of remote tables. Fetches run on a bounded
// pool since the tables are disjoint; catalog registration stays sequential
// on the engine connection. All loads complete before this returns.
// Per-table failures are logged and skipped, never aborting the pass.
func (s *Session) LoadRemoteTables(ctx context.Context, tables []RemoteTable) {
	if len(tables) == 0 {
		return
	}

	pool, err := ants.NewPool(fetchConcurrency)
	if err != nil {
		// Fall back to sequential fetches.
		pool = nil
	} else {
		defer pool.Release()
	}

	buffers := make([][]byte, len(tables))
	errs := make([]error, len(tables))

	var wg sync.WaitGroup
	for i := range tables {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			buffers[i], errs[i] = s.fetch(ctx, tables[i].URL)
		}
		if pool == nil || pool.Submit(task) != nil {
			task()
		}
	}
	wg.Wait()

	for i, t := range tables {
		if errs[i] != nil {
			s.log.Warn("dataset load failed, skipping",
				"table", t.Name, "url", t.URL, "error", errs[i])
			continue
		}
		if err := s.RegisterBuffer(ctx, t.Name, buffers[i]); err != nil {
			s.log.Warn("dataset registration failed, skipping",
				"table", t.Name, "error", err)
		}
	}
}

// fetch downloads url, serving repeats from the session's buffer cache.
func (s *Session) fetch(ctx context.Context, url string) ([]byte, error) {
	if buf, ok := s.buffers.Get(url); ok {
		return buf, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	s.buffers.Add(url, buf)
	return buf, nil
}

// RegisterBuffer registers a columnar buffer (a self-contained database file
// holding one table) into the catalog under tableName, with replace
// semantics.
func (s *Session) RegisterBuffer(ctx context.Context, tableName string, buf []byte) error {
	h, err := s.Acquire(ctx)
	if err != nil {
		return err
	}

	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	tmp, err := os.CreateTemp("", "canvasql-dataset-*.db")
	if err != nil {
		return codeErrorf(CodeLoadFailed, "stage buffer: %v", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return codeErrorf(CodeLoadFailed, "stage buffer: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return codeErrorf(CodeLoadFailed, "stage buffer: %v", err)
	}

	if _, err := h.DB.ExecContext(ctx, `ATTACH DATABASE ? AS src`, path); err != nil {
		return codeErrorf(CodeLoadFailed, "attach buffer: %v", err)
	}
	defer h.DB.ExecContext(ctx, `DETACH DATABASE src`)

	var srcTable string
	err = h.DB.QueryRowContext(ctx,
		`SELECT name FROM src.sqlite_master WHERE type = 'table' ORDER BY name LIMIT 1`,
	).Scan(&srcTable)
	if err != nil {
		return codeErrorf(CodeLoadFailed, "inspect buffer: %v", err)
	}

	if _, err := h.DB.ExecContext(ctx,
		`DROP TABLE IF EXISTS main.`+quoteIdent(tableName)); err != nil {
		return codeErrorf(CodeLoadFailed, "replace table %s: %v", tableName, err)
	}
	if _, err := h.DB.ExecContext(ctx,
		`CREATE TABLE main.`+quoteIdent(tableName)+` AS SELECT * FROM src.`+quoteIdent(srcTable)); err != nil {
		return codeErrorf(CodeLoadFailed, "register table %s: %v", tableName, err)
	}
	return nil
}

// ConvertToColumnarBuffer converts a row-oriented text file (CSV with a
// header row) into a columnar binary buffer ready for upload: the rows are
// loaded into a scratch database file as a single table, the file's bytes
// become the buffer. The scratch file is removed in all paths.
func (s *Session) ConvertToColumnarBuffer(ctx context.Context, raw []byte) ([]byte, error) {
	tmp, err := os.CreateTemp("", "canvasql-convert-*.db")
	if err != nil {
		return nil, codeErrorf(CodeConvertFailed, "scratch file: %v", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := writeCSVToDatabase(ctx, path, raw); err != nil {
		return nil, wrapCode(CodeConvertFailed, err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, codeErrorf(CodeConvertFailed, "read buffer: %v", err)
	}
	return buf, nil
}

func writeCSVToDatabase(ctx context.Context, path string, raw []byte) error {
	r := csv.NewReader(bytes.NewReader(raw))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 {
		return fmt.Errorf("no columns in header")
	}

	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}

	types := inferColumnTypes(header, records)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open scratch database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	cols := make([]string, len(header))
	for i, name := range header {
		cols[i] = quoteIdent(strings.TrimSpace(name)) + " " + types[i]
	}
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE data (`+strings.Join(cols, ", ")+`)`); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(header)), ", ")
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO data VALUES (`+placeholders+`)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		args := make([]any, len(header))
		for i := range header {
			var v string
			if i < len(rec) {
				v = rec[i]
			}
			if types[i] == "REAL" && v != "" {
				f, err := strconv.ParseFloat(v, 64)
				if err == nil {
					args[i] = f
					continue
				}
			}
			if v == "" {
				args[i] = nil
			} else {
				args[i] = v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// inferColumnTypes assigns REAL to columns whose non-empty values all parse
// as numbers, TEXT otherwise.
func inferColumnTypes(header []string, records [][]string) []string {
	types := make([]string, len(header))
	for i := range header {
		numeric := false
		for _, rec := range records {
			if i >= len(rec) || rec[i] == "" {
				continue
			}
			if _, err := strconv.ParseFloat(rec[i], 64); err != nil {
				numeric = false
				break
			}
			numeric = true
		}
		if numeric {
			types[i] = "REAL"
		} else {
			types[i] = "TEXT"
		}
	}
	return types
}
