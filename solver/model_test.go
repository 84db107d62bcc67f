package solver

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

// TestParseModelValues verifies the literal forms solvers emit in (get-value ...) answers.
func TestParseModelValues(t *testing.T) {
	output := `((x #x0000000000000000000000000000000000000000000000000000000000000007)
 (|balances[0]| #b1010)
 (y (_ bv42 256)))`

	values, err := parseModelValues(output)
	assert.NoError(t, err)
	assert.Len(t, values, 3)
	assert.Equal(t, uint256.NewInt(7), values["x"])
	assert.Equal(t, uint256.NewInt(10), values["balances[0]"])
	assert.Equal(t, uint256.NewInt(42), values["y"])
}

// TestParseModelValuesEmpty verifies an empty answer yields an empty assignment.
func TestParseModelValuesEmpty(t *testing.T) {
	values, err := parseModelValues("")
	assert.NoError(t, err)
	assert.Empty(t, values)
}

// TestParseOutput verifies the interpretation of the solver's answer line.
func TestParseOutput(t *testing.T) {
	s := NewZ3Solver("")

	result, err := s.parseOutput("unsat\n", Query{})
	assert.NoError(t, err)
	assert.Equal(t, ResultUnsat, result.Result)
	assert.False(t, result.TimedOut)

	result, err = s.parseOutput("timeout\n", Query{})
	assert.NoError(t, err)
	assert.Equal(t, ResultUnknown, result.Result)
	assert.True(t, result.TimedOut)

	result, err = s.parseOutput("unknown\n", Query{})
	assert.NoError(t, err)
	assert.Equal(t, ResultUnknown, result.Result)

	result, err = s.parseOutput("sat\n((x #x01))\n", Query{ValueNames: []string{"x"}})
	assert.NoError(t, err)
	assert.Equal(t, ResultSat, result.Result)
	assert.Equal(t, uint256.NewInt(1), result.Values["x"])

	// Answers without a requested model carry no values.
	result, err = s.parseOutput("sat\n", Query{})
	assert.NoError(t, err)
	assert.Nil(t, result.Values)

	_, err = s.parseOutput("(error \"line 1: unknown logic\")\n", Query{})
	assert.Error(t, err)
	_, err = s.parseOutput("", Query{})
	assert.ErrorIs(t, err, ErrUnavailable)
}
