package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meikuraledutech/canvasql"
)

func TestInferConfig(t *testing.T) {
	tests := []struct {
		name     string
		res      *canvasql.Result
		wantType Type
		wantX    string
		wantY    []string
	}{
		{
			name: "date column plus numeric gives line",
			res: &canvasql.Result{
				Columns: []string{"created_at", "revenue"},
				Rows: [][]any{
					{"2024-01-01", 120.5},
					{"2024-01-02", 98.0},
				},
			},
			wantType: TypeLine,
			wantX:    "created_at",
			wantY:    []string{"revenue"},
		},
		{
			name: "single numeric gives bar",
			res: &canvasql.Result{
				Columns: []string{"region", "amt"},
				Rows: [][]any{
					{"east", 10.0},
					{"west", 20.0},
				},
			},
			wantType: TypeBar,
			wantX:    "region",
			wantY:    []string{"amt"},
		},
		{
			name: "two numeric gives scatter",
			res: &canvasql.Result{
				Columns: []string{"height", "weight"},
				Rows: [][]any{
					{170.0, 65.0},
					{182.0, 80.0},
				},
			},
			wantType: TypeScatter,
			wantX:    "height",
			wantY:    []string{"weight"},
		},
		{
			name: "no numeric falls back to bar",
			res: &canvasql.Result{
				Columns: []string{"name", "city"},
				Rows: [][]any{
					{"ada", "london"},
					{"alan", "manchester"},
				},
			},
			wantType: TypeBar,
			wantX:    "name",
			wantY:    []string{},
		},
		{
			name: "numeric strings count as numeric",
			res: &canvasql.Result{
				Columns: []string{"label", "count"},
				Rows: [][]any{
					{"a", "42"},
					{"b", "7"},
				},
			},
			wantType: TypeBar,
			wantX:    "label",
			wantY:    []string{"count"},
		},
		{
			name: "nulls do not break classification",
			res: &canvasql.Result{
				Columns: []string{"day", "visits"},
				Rows: [][]any{
					{"mon", nil},
					{"tue", 13.0},
				},
			},
			wantType: TypeLine, // "day" is date-like by name
			wantX:    "day",
			wantY:    []string{"visits"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := InferConfig(tt.res)
			assert.Equal(t, tt.wantType, cfg.Type)
			assert.Equal(t, tt.wantX, cfg.XAxis)
			assert.Equal(t, tt.wantY, cfg.YAxes)
		})
	}
}

func TestInferConfigAllNumericWithDateName(t *testing.T) {
	// X prefers the date-like column even when it is numeric, and it is
	// excluded from the Y axes.
	res := &canvasql.Result{
		Columns: []string{"year", "total"},
		Rows:    [][]any{{2023.0, 10.0}, {2024.0, 12.0}},
	}
	cfg := InferConfig(res)
	assert.Equal(t, TypeLine, cfg.Type)
	assert.Equal(t, "year", cfg.XAxis)
	assert.Equal(t, []string{"total"}, cfg.YAxes)
}

func rows(n int) [][]any {
	out := make([][]any, n)
	for i := range out {
		out[i] = []any{float64(i)}
	}
	return out
}

func TestSampleDataIdentity(t *testing.T) {
	data := rows(50)
	assert.Equal(t, data, SampleData(data, 50))
	assert.Equal(t, data, SampleData(data, 100))
	assert.Equal(t, [][]any(nil), SampleData(nil, 10))
}

func TestSampleDataStride(t *testing.T) {
	tests := []struct {
		n, maxPoints, wantLen int
	}{
		{100, 10, 10},
		{101, 10, 10}, // step 11, ceil(101/11) = 10
		{1000, 300, 250},
		{5000, 1000, 1000},
		{7, 3, 3},
	}
	for _, tt := range tests {
		data := rows(tt.n)
		out := SampleData(data, tt.maxPoints)

		step := (tt.n + tt.maxPoints - 1) / tt.maxPoints
		assert.Len(t, out, tt.wantLen)
		assert.LessOrEqual(t, len(out), tt.maxPoints)

		// Deterministic stride: every step-th row, original order preserved.
		for i, row := range out {
			assert.Equal(t, float64(i*step), row[0])
		}

		// Pure: same input, same output.
		assert.Equal(t, out, SampleData(data, tt.maxPoints))
	}
}
