// Package chart infers a chart configuration from a tabular result when a
// chart box has no explicit configuration, and downsamples large results to
// bound rendering cost.
package chart

import (
	"strconv"
	"strings"

	"github.com/meikuraledutech/canvasql"
)

// Type of chart to render.
type Type string

const (
	TypeLine    Type = "line"
	TypeBar     Type = "bar"
	TypeScatter Type = "scatter"
)

// Config is the serialized chart configuration stored in a chart box.
type Config struct {
	Type  Type     `json:"type"`
	XAxis string   `json:"xAxis"`
	YAxes []string `json:"yAxes"`
}

// classifySampleRows bounds value inspection when classifying columns.
const classifySampleRows = 100

// dateKeywords mark a column name as date-like. Name heuristic only; values
// are never inspected.
var dateKeywords = []string{
	"date", "time", "timestamp", "created", "updated", "year", "month", "day",
}

// InferConfig derives a chart configuration from a result.
//
// Type policy: a date-like column plus at least one numeric column gives a
// line chart; exactly one numeric column gives a bar chart; exactly two give
// a scatter plot; anything else falls back to bar. The X axis prefers a
// date-like column, then the first non-numeric column, then the first column
// overall; the Y axes are all numeric columns except the X axis.
func InferConfig(res *canvasql.Result) Config {
	numeric := []string{}
	numericSet := map[string]bool{}
	for i, col := range res.Columns {
		if isNumericColumn(res.Rows, i) {
			numeric = append(numeric, col)
			numericSet[col] = true
		}
	}

	dateCol := ""
	for _, col := range res.Columns {
		if isDateLike(col) {
			dateCol = col
			break
		}
	}

	var typ Type
	switch {
	case dateCol != "" && len(numeric) >= 1:
		typ = TypeLine
	case len(numeric) == 1:
		typ = TypeBar
	case len(numeric) == 2:
		typ = TypeScatter
	default:
		typ = TypeBar
	}

	x := dateCol
	if x == "" {
		for _, col := range res.Columns {
			if !numericSet[col] {
				x = col
				break
			}
		}
	}
	if x == "" && len(res.Columns) > 0 {
		x = res.Columns[0]
	}

	yAxes := []string{}
	for _, col := range numeric {
		if col != x {
			yAxes = append(yAxes, col)
		}
	}

	return Config{Type: typ, XAxis: x, YAxes: yAxes}
}

// isNumericColumn reports whether every non-null value of column idx, across
// the first classifySampleRows rows, is a number or a numeric string.
func isNumericColumn(rows [][]any, idx int) bool {
	seen := false
	for i, row := range rows {
		if i >= classifySampleRows {
			break
		}
		if idx >= len(row) || row[idx] == nil {
			continue
		}
		switch v := row[idx].(type) {
		case float64, int, int64:
			seen = true
		case string:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return false
			}
			seen = true
		default:
			return false
		}
	}
	return seen
}

func isDateLike(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range dateKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SampleData bounds rows to at most maxPoints by stride sampling: when the
// row count exceeds maxPoints, every ceil(n/maxPoints)-th row is taken.
// Deterministic, order-preserving, and a pure function of its input; data of
// length at most maxPoints is returned unchanged.
func SampleData(rows [][]any, maxPoints int) [][]any {
	if maxPoints <= 0 || len(rows) <= maxPoints {
		return rows
	}
	step := (len(rows) + maxPoints - 1) / maxPoints
	out := make([][]any, 0, (len(rows)+step-1)/step)
	for i := 0; i < len(rows); i += step {
		out = append(out, rows[i])
	}
	return out
}
