package execution

import (
	"context"

	"github.com/sthenolabs/stheno/solver"
	"github.com/sthenolabs/stheno/symbolic"
)

// AssertionOutcome classifies the result of a top-level safety query.
type AssertionOutcome int

const (
	// OutcomeIndeterminate indicates the solver could not decide the query, typically on
	// timeout. It is reported as inconclusive and never treated as safe.
	OutcomeIndeterminate AssertionOutcome = iota
	// OutcomeSafe indicates no assignment reaches the violation on this path.
	OutcomeSafe
	// OutcomeViolated indicates the violation is reachable; a witnessing model accompanies it.
	OutcomeViolated
)

// String returns the outcome name as it appears in reports.
func (o AssertionOutcome) String() string {
	switch o {
	case OutcomeSafe:
		return "safe"
	case OutcomeViolated:
		return "violated"
	}
	return "indeterminate"
}

// AssertionResult is the outcome of checking one safety property on one path.
type AssertionResult struct {
	// Outcome is the classification of the query answer.
	Outcome AssertionOutcome

	// Model is a satisfying assignment for every symbolic variable involved when the
	// assertion is violated, suitable for constructing a reproducing transaction sequence.
	Model symbolic.Assignment

	// TimedOut indicates an indeterminate outcome was caused by the query deadline.
	TimedOut bool
}

// CheckAssertion determines whether the given violation condition is reachable on the path:
// it asks the solver for a model of (path condition AND violation). Unlike alias queries, a
// timeout here is not degraded silently; the result is explicitly indeterminate.
func (m *StateModel) CheckAssertion(ctx context.Context, path *Path, violation *symbolic.Expr) (*AssertionResult, error) {
	pathCondition, err := path.Condition()
	if err != nil {
		return nil, err
	}
	assertions := []*symbolic.Expr{pathCondition, violation}

	// Request a value for every variable involved so a violation comes back with a complete
	// reproducing assignment.
	names := make(map[string]struct{})
	for _, a := range assertions {
		for _, v := range symbolic.Variables(a) {
			names[v.Name()] = struct{}{}
		}
	}
	valueNames := make([]string, 0, len(names))
	for name := range names {
		valueNames = append(valueNames, name)
	}

	result, err := m.smt.CheckSat(ctx, solver.Query{Assertions: assertions, ValueNames: valueNames})
	if err != nil {
		return nil, err
	}
	switch result.Result {
	case solver.ResultUnsat:
		return &AssertionResult{Outcome: OutcomeSafe}, nil
	case solver.ResultSat:
		return &AssertionResult{Outcome: OutcomeViolated, Model: result.Values}, nil
	default:
		return &AssertionResult{Outcome: OutcomeIndeterminate, TimedOut: result.TimedOut}, nil
	}
}
