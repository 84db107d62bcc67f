package storage

import (
	"context"
	"sync"

	"github.com/sthenolabs/stheno/solver"
	"github.com/sthenolabs/stheno/symbolic"
)

// Verdict is the alias decider's answer for a pair of slot expressions under a path condition.
type Verdict int

const (
	// VerdictUnknown indicates the two slots may or may not alias; reads model the ambiguity
	// with a conditional value instead of forcing a decision.
	VerdictUnknown Verdict = iota
	// VerdictMust indicates the two slots are guaranteed to be the same storage cell.
	VerdictMust
	// VerdictMustNot indicates the two slots are guaranteed to be different storage cells.
	VerdictMustNot
)

// String returns the verdict name as it appears in logs.
func (v Verdict) String() string {
	switch v {
	case VerdictMust:
		return "must-alias"
	case VerdictMustNot:
		return "must-not-alias"
	}
	return "may-alias"
}

// AliasDecider answers whether two slot expressions address the same storage cell under a path
// condition. Cheap syntactic rules are tried first; only pairs they cannot settle reach the
// external solver. Verdicts are memoized for the lifetime of one exploration path, so a
// decider must not be shared between sibling paths: their path conditions differ, and results
// from an abandoned subtree must never leak into a sibling's cache.
type AliasDecider struct {
	b   *symbolic.Builder
	smt solver.Solver

	lock  sync.Mutex
	cache map[pairKey]Verdict
}

// pairKey identifies an unordered pair of slot expressions. Both orderings are inserted so
// lookup stays a single map access.
type pairKey struct {
	a, b *symbolic.Expr
}

// NewAliasDecider returns a decider with an empty verdict cache.
func NewAliasDecider(builder *symbolic.Builder, smt solver.Solver) *AliasDecider {
	return &AliasDecider{
		b:     builder,
		smt:   smt,
		cache: make(map[pairKey]Verdict),
	}
}

// Decide determines whether slots a and b alias under the given path condition.
//
// The returned error is ErrInfeasiblePath when the path condition itself is unsatisfiable
// (neither equality nor inequality of the slots can hold); callers prune the path. Solver
// timeouts are not errors: they degrade the verdict to VerdictUnknown, which keeps read
// resolution sound at the cost of a conditional value.
func (d *AliasDecider) Decide(ctx context.Context, a, b *Slot, pathCondition *symbolic.Expr) (Verdict, error) {
	// Structurally identical expressions always alias. Hash-consing makes this a pointer
	// comparison, and it is the only free must-alias rule.
	if a.Expr == b.Expr {
		return VerdictMust, nil
	}

	// Storage regions of distinct declared variables never overlap by construction of the
	// layout scheme, whatever their keys evaluate to.
	if a.Variable != "" && b.Variable != "" && a.Variable != b.Variable {
		return VerdictMustNot, nil
	}

	// Two distinct concrete addresses.
	if a.Expr.IsConst() && b.Expr.IsConst() {
		return VerdictMustNot, nil
	}

	key := pairKey{a.Expr, b.Expr}
	d.lock.Lock()
	if v, ok := d.cache[key]; ok {
		d.lock.Unlock()
		return v, nil
	}
	d.lock.Unlock()

	verdict, err := d.query(ctx, a.Expr, b.Expr, pathCondition)
	if err != nil {
		return VerdictUnknown, err
	}

	d.lock.Lock()
	d.cache[key] = verdict
	d.cache[pairKey{b.Expr, a.Expr}] = verdict
	d.lock.Unlock()
	return verdict, nil
}

// query asks the solver whether the slots can be equal and whether they can differ under the
// path condition, and maps the four outcomes onto a verdict.
func (d *AliasDecider) query(ctx context.Context, a, b *symbolic.Expr, pathCondition *symbolic.Expr) (Verdict, error) {
	eq, err := d.b.Eq(a, b)
	if err != nil {
		return VerdictUnknown, err
	}
	neq, err := d.b.Not(eq)
	if err != nil {
		return VerdictUnknown, err
	}

	eqResult, err := d.checkWithCondition(ctx, eq, pathCondition)
	if err != nil {
		return VerdictUnknown, err
	}
	neqResult, err := d.checkWithCondition(ctx, neq, pathCondition)
	if err != nil {
		return VerdictUnknown, err
	}

	switch {
	case eqResult == solver.ResultUnsat && neqResult == solver.ResultUnsat:
		// Not even the path condition alone is satisfiable.
		return VerdictUnknown, ErrInfeasiblePath
	case eqResult == solver.ResultSat && neqResult == solver.ResultUnsat:
		return VerdictMust, nil
	case eqResult == solver.ResultUnsat && neqResult == solver.ResultSat:
		return VerdictMustNot, nil
	default:
		// Both satisfiable, or at least one answer unknown (including timeouts): the
		// conservative verdict.
		return VerdictUnknown, nil
	}
}

func (d *AliasDecider) checkWithCondition(ctx context.Context, cond, pathCondition *symbolic.Expr) (solver.Result, error) {
	assertions := []*symbolic.Expr{cond}
	if pathCondition != nil {
		assertions = append(assertions, pathCondition)
	}
	result, err := d.smt.CheckSat(ctx, solver.Query{Assertions: assertions})
	if err != nil {
		return solver.ResultUnknown, err
	}
	return result.Result, nil
}
