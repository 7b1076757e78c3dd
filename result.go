package canvasql

import (
	"encoding/json"
	"fmt"
)

// Result is the serialized tabular output of a query run, persisted on the
// box that produced it and used to materialize named tables for chaining.
// Row values are limited to string, float64, bool, and nil after
// normalization; 64-bit integers are carried as decimal strings.
type Result struct {
	Columns         []string `json:"columns"`
	Rows            [][]any  `json:"rows"`
	ExecutionTimeMs float64  `json:"executionTime,omitempty"`
	TotalRows       int      `json:"totalRows,omitempty"`
	Truncated       bool     `json:"truncated,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// ErrorResult builds the failure form of a result payload: the error message
// plus empty columns and rows, so the box visibly shows the failure.
func ErrorResult(msg string) *Result {
	return &Result{Columns: []string{}, Rows: [][]any{}, Error: msg}
}

// ParseResult decodes a stored result payload.
func ParseResult(raw json.RawMessage) (*Result, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("canvasql: empty result payload")
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("canvasql: parse result: %w", err)
	}
	return &r, nil
}

// Marshal serializes the result for persistence.
func (r *Result) Marshal() (json.RawMessage, error) {
	out, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("canvasql: marshal result: %w", err)
	}
	return out, nil
}
