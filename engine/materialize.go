package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/meikuraledutech/canvasql"
)

// NamedResult pairs a queryable table name with a stored result payload.
type NamedResult struct {
	Name    string
	Payload json.RawMessage
}

// LoadNamedResult parses a previously stored result payload and registers it
// as a catalog table under tableName, replacing any existing table of that
// name, so downstream queries can reference it. Must run before the
// dependent query executes.
func (s *Session) LoadNamedResult(ctx context.Context, tableName string, payload json.RawMessage) error {
	res, err := canvasql.ParseResult(payload)
	if err != nil {
		return wrapCode(CodeLoadFailed, err)
	}
	if res.Error != "" {
		return codeErrorf(CodeLoadFailed, "stored result for %s is an error payload", tableName)
	}
	if len(res.Columns) == 0 {
		return codeErrorf(CodeLoadFailed, "stored result for %s has no columns", tableName)
	}

	h, err := s.Acquire(ctx)
	if err != nil {
		return err
	}

	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	if _, err := h.DB.ExecContext(ctx,
		`DROP TABLE IF EXISTS `+quoteIdent(tableName)); err != nil {
		return codeErrorf(CodeLoadFailed, "replace table %s: %v", tableName, err)
	}

	cols := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		cols[i] = quoteIdent(c)
	}
	if _, err := h.DB.ExecContext(ctx,
		`CREATE TABLE `+quoteIdent(tableName)+` (`+strings.Join(cols, ", ")+`)`); err != nil {
		return codeErrorf(CodeLoadFailed, "create table %s: %v", tableName, err)
	}

	if len(res.Rows) == 0 {
		return nil
	}

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return codeErrorf(CodeLoadFailed, "begin tx: %v", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(res.Columns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+quoteIdent(tableName)+` VALUES (`+placeholders+`)`)
	if err != nil {
		return codeErrorf(CodeLoadFailed, "prepare insert: %v", err)
	}
	defer stmt.Close()

	for _, row := range res.Rows {
		args := make([]any, len(res.Columns))
		for i := range res.Columns {
			if i < len(row) {
				args[i] = row[i]
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return codeErrorf(CodeLoadFailed, "insert into %s: %v", tableName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return codeErrorf(CodeLoadFailed, "commit %s: %v", tableName, err)
	}
	return nil
}

// LoadNamedResults registers a set of named results. Loading is best-effort
// per name: one failure is logged and skipped so it cannot abort the others.
func (s *Session) LoadNamedResults(ctx context.Context, results []NamedResult) {
	for _, nr := range results {
		if err := s.LoadNamedResult(ctx, nr.Name, nr.Payload); err != nil {
			s.log.Warn("named result load failed, skipping",
				"table", nr.Name, "error", err)
		}
	}
}
