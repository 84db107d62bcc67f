package execution

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/google/uuid"
	"github.com/sthenolabs/stheno/solver"
	"github.com/sthenolabs/stheno/storage"
	"github.com/sthenolabs/stheno/symbolic"
)

// Path is the state of one branch of symbolic exploration: its accumulated path condition and
// its view of every contract's storage journal. Forking a path is cheap: children share the
// parent's journal prefix and condition list by structure and only ever append to their own
// tails, so sibling paths are fully isolated without copying history.
//
// Each path owns its own alias verdict cache. Verdicts depend on the path condition, so they
// are never shared between siblings, and abandoning a path discards its cache with it.
type Path struct {
	id         uuid.UUID
	b          *symbolic.Builder
	smt        solver.Solver
	conditions []*symbolic.Expr
	logs       map[common.Address]*storage.Log
	decider    *storage.AliasDecider
}

// NewRootPath returns the root exploration path with an empty (true) path condition.
func NewRootPath(builder *symbolic.Builder, smt solver.Solver) *Path {
	return &Path{
		id:      uuid.New(),
		b:       builder,
		smt:     smt,
		logs:    make(map[common.Address]*storage.Log),
		decider: storage.NewAliasDecider(builder, smt),
	}
}

// ID returns the path's unique identity.
func (p *Path) ID() uuid.UUID {
	return p.id
}

// Condition returns the path condition: the conjunction of every branch constraint
// accumulated to reach this point.
func (p *Path) Condition() (*symbolic.Expr, error) {
	return p.b.And(p.conditions...)
}

// Decider returns the path's alias decider.
func (p *Path) Decider() *storage.AliasDecider {
	return p.decider
}

// Branch forks the path at a condition, returning the child exploring cond and the child
// exploring its negation. The receiver must not be used for further reads or writes after
// branching; both children carry the history forward.
func (p *Path) Branch(cond *symbolic.Expr) (*Path, *Path, error) {
	negated, err := p.b.Not(cond)
	if err != nil {
		return nil, nil, err
	}
	return p.fork(cond), p.fork(negated), nil
}

// Constrain forks the path once, appending a single additional condition. It is used when one
// side of a branch is known infeasible, and by tests to pin symbolic variables.
func (p *Path) Constrain(cond *symbolic.Expr) *Path {
	return p.fork(cond)
}

// fork creates a child path with an additional path condition and copy-on-write journal views.
func (p *Path) fork(cond *symbolic.Expr) *Path {
	conditions := make([]*symbolic.Expr, len(p.conditions), len(p.conditions)+1)
	copy(conditions, p.conditions)
	conditions = append(conditions, cond)

	logs := make(map[common.Address]*storage.Log, len(p.logs))
	for contract, log := range p.logs {
		logs[contract] = log.Fork()
	}

	return &Path{
		id:         uuid.New(),
		b:          p.b,
		smt:        p.smt,
		conditions: conditions,
		logs:       logs,
		decider:    storage.NewAliasDecider(p.b, p.smt),
	}
}

// log returns the journal for the given contract, creating an empty one on first use.
func (p *Path) log(contract common.Address) *storage.Log {
	l, ok := p.logs[contract]
	if !ok {
		l = storage.NewLog(contract, p.b)
		p.logs[contract] = l
	}
	return l
}

// WriteHistory returns the full ordered write history for the given contract on this path.
func (p *Path) WriteHistory(contract common.Address) []*storage.Entry {
	l, ok := p.logs[contract]
	if !ok {
		return nil
	}
	return l.History()
}

// Contracts returns every contract this path has touched.
func (p *Path) Contracts() []common.Address {
	contracts := make([]common.Address, 0, len(p.logs))
	for contract := range p.logs {
		contracts = append(contracts, contract)
	}
	return contracts
}
