package storage

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/sthenolabs/stheno/solver"
	"github.com/sthenolabs/stheno/symbolic"
)

// scriptedSolver is a solver stub answering queries from a prepared list of results, in order.
// It records every query so tests can assert on how often (and with what) the solver was
// consulted. Queries beyond the script answer unknown.
type scriptedSolver struct {
	results []*solver.CheckResult
	queries []solver.Query
}

func (s *scriptedSolver) CheckSat(ctx context.Context, query solver.Query) (*solver.CheckResult, error) {
	s.queries = append(s.queries, query)
	if len(s.queries) > len(s.results) {
		return &solver.CheckResult{Result: solver.ResultUnknown}, nil
	}
	return s.results[len(s.queries)-1], nil
}

func satResult() *solver.CheckResult {
	return &solver.CheckResult{Result: solver.ResultSat}
}

func unsatResult() *solver.CheckResult {
	return &solver.CheckResult{Result: solver.ResultUnsat}
}

func timeoutResult() *solver.CheckResult {
	return &solver.CheckResult{Result: solver.ResultUnknown, TimedOut: true}
}

// wordSlot wraps a bare expression as a slot without variable provenance.
func wordSlot(e *symbolic.Expr) *Slot {
	return &Slot{Expr: e, ValueNode: WordNode()}
}

// TestAliasDeciderSyntacticRules verifies the solver-free verdicts: structural identity,
// distinct declared variables, and distinct concrete addresses.
func TestAliasDeciderSyntacticRules(t *testing.T) {
	b := symbolic.NewBuilder()
	smt := &scriptedSolver{}
	decider := NewAliasDecider(b, smt)
	ctx := context.Background()

	key := b.Var("k", symbolic.WordWidth)
	preimage, err := b.Concat(key, b.Word(uint256.NewInt(1)))
	assert.NoError(t, err)
	digest, err := b.Digest(preimage)
	assert.NoError(t, err)

	// Identical expression nodes must alias.
	a := &Slot{Expr: digest, Variable: "balances", ValueNode: WordNode()}
	verdict, err := decider.Decide(ctx, a, a, nil)
	assert.NoError(t, err)
	assert.Equal(t, VerdictMust, verdict)

	// Slots of distinct declared variables never alias, whatever their keys are.
	other := &Slot{Expr: b.Var("somewhere", symbolic.WordWidth), Variable: "owner", ValueNode: WordNode()}
	verdict, err = decider.Decide(ctx, a, other, nil)
	assert.NoError(t, err)
	assert.Equal(t, VerdictMustNot, verdict)

	// Distinct concrete addresses never alias.
	verdict, err = decider.Decide(ctx, wordSlot(b.Word(uint256.NewInt(0))), wordSlot(b.Word(uint256.NewInt(1))), nil)
	assert.NoError(t, err)
	assert.Equal(t, VerdictMustNot, verdict)

	// None of the above reached the solver.
	assert.Empty(t, smt.queries)
}

// TestAliasDeciderSolverVerdicts verifies the mapping of the two-query answers onto verdicts.
func TestAliasDeciderSolverVerdicts(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		results []*solver.CheckResult
		verdict Verdict
	}{
		{"forced equal", []*solver.CheckResult{satResult(), unsatResult()}, VerdictMust},
		{"forced distinct", []*solver.CheckResult{unsatResult(), satResult()}, VerdictMustNot},
		{"both possible", []*solver.CheckResult{satResult(), satResult()}, VerdictUnknown},
		{"timeout degrades", []*solver.CheckResult{timeoutResult(), satResult()}, VerdictUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := symbolic.NewBuilder()
			smt := &scriptedSolver{results: tc.results}
			decider := NewAliasDecider(b, smt)

			a := wordSlot(b.Var("a", symbolic.WordWidth))
			c := wordSlot(b.Var("c", symbolic.WordWidth))
			verdict, err := decider.Decide(ctx, a, c, nil)
			assert.NoError(t, err)
			assert.Equal(t, tc.verdict, verdict)
			assert.Len(t, smt.queries, 2)
		})
	}
}

// TestAliasDeciderInfeasiblePath verifies that an unsatisfiable path condition surfaces as the
// pruning signal rather than a verdict.
func TestAliasDeciderInfeasiblePath(t *testing.T) {
	b := symbolic.NewBuilder()
	smt := &scriptedSolver{results: []*solver.CheckResult{unsatResult(), unsatResult()}}
	decider := NewAliasDecider(b, smt)

	a := wordSlot(b.Var("a", symbolic.WordWidth))
	c := wordSlot(b.Var("c", symbolic.WordWidth))
	contradiction, err := b.Eq(b.Var("x", symbolic.WordWidth), b.Word(uint256.NewInt(1)))
	assert.NoError(t, err)

	_, err = decider.Decide(context.Background(), a, c, contradiction)
	assert.ErrorIs(t, err, ErrInfeasiblePath)
}

// TestAliasDeciderCaching verifies a decided pair is answered from the cache in both orders.
func TestAliasDeciderCaching(t *testing.T) {
	b := symbolic.NewBuilder()
	smt := &scriptedSolver{results: []*solver.CheckResult{satResult(), unsatResult()}}
	decider := NewAliasDecider(b, smt)
	ctx := context.Background()

	a := wordSlot(b.Var("a", symbolic.WordWidth))
	c := wordSlot(b.Var("c", symbolic.WordWidth))

	verdict, err := decider.Decide(ctx, a, c, nil)
	assert.NoError(t, err)
	assert.Equal(t, VerdictMust, verdict)
	assert.Len(t, smt.queries, 2)

	// Same pair again, both orderings: no further solver traffic.
	verdict, err = decider.Decide(ctx, a, c, nil)
	assert.NoError(t, err)
	assert.Equal(t, VerdictMust, verdict)
	verdict, err = decider.Decide(ctx, c, a, nil)
	assert.NoError(t, err)
	assert.Equal(t, VerdictMust, verdict)
	assert.Len(t, smt.queries, 2)
}

// TestAliasDeciderQueryShape verifies the path condition is asserted alongside the alias
// question.
func TestAliasDeciderQueryShape(t *testing.T) {
	b := symbolic.NewBuilder()
	smt := &scriptedSolver{results: []*solver.CheckResult{satResult(), satResult()}}
	decider := NewAliasDecider(b, smt)

	a := wordSlot(b.Var("a", symbolic.WordWidth))
	c := wordSlot(b.Var("c", symbolic.WordWidth))
	pathCondition, err := b.Lt(a.Expr, c.Expr)
	assert.NoError(t, err)

	_, err = decider.Decide(context.Background(), a, c, pathCondition)
	assert.NoError(t, err)
	assert.Len(t, smt.queries, 2)
	for _, q := range smt.queries {
		assert.Len(t, q.Assertions, 2)
		assert.Same(t, pathCondition, q.Assertions[1])
	}
}
