package parser

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtractsRefs(t *testing.T) {
	exp, err := Parse(`last(1001) > 90 || avg(1002, 300) >= 80`)
	require.NoError(t, err)

	require.Len(t, exp.Refs, 2)
	assert.Equal(t, FuncRef{Name: "last", ItemID: 1001}, exp.Refs[0])
	assert.Equal(t, FuncRef{Name: "avg", ItemID: 1002, Params: []string{"300"}}, exp.Refs[1])
	assert.Equal(t, []int64{1001, 1002}, exp.ItemIDs())
}

func TestParseItemIDsDedup(t *testing.T) {
	exp, err := Parse(`last(1001) > 90 && min(1001, 300) > 10`)
	require.NoError(t, err)
	assert.Equal(t, []int64{1001}, exp.ItemIDs())
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"missing item id", "last() > 0"},
		{"non literal item id", "last(x) > 0"},
		{"syntax error", "last(1001 >"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			assert.Error(t, err)
		})
	}
}

func TestExecute(t *testing.T) {
	exp, err := Parse(`last(1001) > 90 || avg(1002, 300) >= 80`)
	require.NoError(t, err)

	values := map[int64]float64{1001: 50, 1002: 85}
	eval := func(name string, itemID int64, params []string) (float64, error) {
		return values[itemID], nil
	}

	got, err := exp.Execute(eval)
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	values[1002] = 10
	got, err = exp.Execute(eval)
	require.NoError(t, err)
	assert.Equal(t, float64(0), got)
}

func TestExecuteArithmetic(t *testing.T) {
	exp, err := Parse(`last(1001) - last(1002)`)
	require.NoError(t, err)

	eval := func(name string, itemID int64, params []string) (float64, error) {
		if itemID == 1001 {
			return 7, nil
		}
		return 4, nil
	}

	got, err := exp.Execute(eval)
	require.NoError(t, err)
	assert.Equal(t, float64(3), got)
}

func TestExecutePropagatesEvalError(t *testing.T) {
	exp, err := Parse(`last(1001) > 0`)
	require.NoError(t, err)

	wantErr := fmt.Errorf("last(1001): not enough data")
	_, err = exp.Execute(func(name string, itemID int64, params []string) (float64, error) {
		return 0, wantErr
	})
	require.Error(t, err)
	assert.Equal(t, wantErr.Error(), err.Error())
}
