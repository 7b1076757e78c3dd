package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteEmptyQuery(t *testing.T) {
	s := NewSession()
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := s.Execute(context.Background(), q)
		require.Error(t, err)
		assert.Equal(t, CodeEmptyQuery, CodeOf(err))
	}
}

func TestExecuteSelect(t *testing.T) {
	s := NewSession()
	res, err := s.Execute(context.Background(),
		`SELECT 'east' AS region, 10 AS amt UNION ALL SELECT 'west', 20 ORDER BY region`)
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "amt"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "east", res.Rows[0][0])
	assert.Equal(t, "10", res.Rows[0][1]) // integers serialize as decimal strings
	assert.Equal(t, 2, res.TotalRows)
	assert.False(t, res.Truncated)
	assert.GreaterOrEqual(t, res.ExecutionTimeMs, 0.0)
}

func TestExecuteNormalizesScalars(t *testing.T) {
	s := NewSession()
	res, err := s.Execute(context.Background(),
		`SELECT 9007199254740993 AS big, 1.5 AS f, 'x' AS s, NULL AS n`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	// Above 2^53: only safe as a decimal string.
	assert.Equal(t, "9007199254740993", row[0])
	assert.Equal(t, 1.5, row[1])
	assert.Equal(t, "x", row[2])
	assert.Nil(t, row[3])
}

func TestExecuteRowCap(t *testing.T) {
	s := NewSession()
	res, err := s.Execute(context.Background(), `
		WITH RECURSIVE cnt(x) AS (
			SELECT 1 UNION ALL SELECT x + 1 FROM cnt WHERE x < 5000
		)
		SELECT x FROM cnt`)
	require.NoError(t, err)

	assert.Len(t, res.Rows, MaxRows)
	assert.Equal(t, 5000, res.TotalRows)
	assert.True(t, res.Truncated)
	// The kept rows are the first MaxRows in order.
	assert.Equal(t, "1", res.Rows[0][0])
	assert.Equal(t, "1000", res.Rows[MaxRows-1][0])
}

func TestExecuteSQLErrorIsTerminal(t *testing.T) {
	s := NewSession()
	_, err := s.Execute(context.Background(), `SELECT * FROM no_such_table`)
	require.Error(t, err)
	assert.Equal(t, CodeExecutionFailed, CodeOf(err))
	// The engine message is surfaced verbatim inside the coded error.
	assert.Contains(t, err.Error(), "no_such_table")
}
