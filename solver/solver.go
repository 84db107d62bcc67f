package solver

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sthenolabs/stheno/symbolic"
)

// ErrUnavailable indicates the external solver process could not be started or spoken to.
// It is fatal for the whole run; callers surface it rather than retrying indefinitely.
var ErrUnavailable = errors.New("SMT solver is unavailable")

// Result is the solver's satisfiability answer for one query.
type Result int

const (
	// ResultUnknown indicates the solver could not decide the query, typically on timeout.
	ResultUnknown Result = iota
	// ResultSat indicates the asserted constraints are satisfiable.
	ResultSat
	// ResultUnsat indicates the asserted constraints are unsatisfiable.
	ResultUnsat
)

// String returns the lowercase solver answer name.
func (r Result) String() string {
	switch r {
	case ResultSat:
		return "sat"
	case ResultUnsat:
		return "unsat"
	}
	return "unknown"
}

// Query is one satisfiability question: a conjunction of boolean assertions, and optionally a
// list of variable names whose values should be read back from a satisfying model.
type Query struct {
	// Assertions are the boolean constraints checked together.
	Assertions []*symbolic.Expr

	// ValueNames lists symbolic variable names to extract from the model when the query is
	// satisfiable. Leave empty when only the sat/unsat answer matters.
	ValueNames []string
}

// CheckResult is the outcome of a query.
type CheckResult struct {
	// Result is the satisfiability answer.
	Result Result

	// TimedOut indicates an unknown answer was caused by the query deadline rather than by
	// solver incompleteness. Alias queries degrade it to an unknown verdict; top-level
	// assertion queries must report it as indeterminate instead of safe.
	TimedOut bool

	// Values holds the model assignment for the requested value names when Result is sat and
	// value extraction was requested.
	Values symbolic.Assignment
}

// Solver answers satisfiability queries. Implementations must be safe for concurrent use so
// sibling exploration paths can issue queries from independent workers.
type Solver interface {
	CheckSat(ctx context.Context, query Query) (*CheckResult, error)
}

// encodeQuery renders a query into a complete SMT-LIB2 script.
func encodeQuery(query Query) (string, error) {
	return symbolic.NewEncoder().Encode(query.Assertions, query.ValueNames)
}
