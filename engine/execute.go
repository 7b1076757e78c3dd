package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/meikuraledutech/canvasql"
)

// MaxRows caps the number of rows kept in a serialized result. Rows beyond
// the cap are still counted toward TotalRows but dropped from the payload.
const MaxRows = 1000

// Execute runs a SQL string against the current catalog and returns the
// serialized result. The query must be non-empty after trimming. Engine
// errors are terminal for the run: no retry, the message is surfaced
// verbatim for the caller to persist as an error payload.
func (s *Session) Execute(ctx context.Context, query string) (*canvasql.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, codeErrorf(CodeEmptyQuery, "query is empty")
	}

	h, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := h.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapCode(CodeExecutionFailed, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, wrapCode(CodeExecutionFailed, err)
	}

	res := &canvasql.Result{Columns: cols, Rows: [][]any{}}
	scan := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range scan {
		ptrs[i] = &scan[i]
	}

	total := 0
	for rows.Next() {
		total++
		if total > MaxRows {
			// Keep counting for TotalRows without materializing the row.
			res.Truncated = true
			continue
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, wrapCode(CodeExecutionFailed, err)
		}
		row := make([]any, len(cols))
		for i, v := range scan {
			row[i] = normalizeValue(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapCode(CodeExecutionFailed, err)
	}

	res.TotalRows = total
	res.ExecutionTimeMs = float64(time.Since(start)) / float64(time.Millisecond)
	return res, nil
}

// normalizeValue maps engine scalars onto the serialized row value set.
// 64-bit integers become decimal strings so they survive JSON round-trips
// without precision loss.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		return strconv.FormatInt(x, 10)
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return v
	}
}

// quoteIdent quotes a table or column name for use in catalog DDL.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
