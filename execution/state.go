package execution

import (
	"context"
	"sync"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
	"github.com/sthenolabs/stheno/logging"
	"github.com/sthenolabs/stheno/solver"
	"github.com/sthenolabs/stheno/storage"
	"github.com/sthenolabs/stheno/symbolic"
)

// StateModel is the storage surface the bytecode interpreter drives: it owns each registered
// contract's layout and slot deriver and routes reads and writes through the journal of the
// path being explored. Derivers and the digest oracle are shared across every path so slot
// expressions remain structurally comparable throughout the exploration tree; per-path state
// (journals, verdict caches) lives on Path.
type StateModel struct {
	b      *symbolic.Builder
	oracle *storage.DigestOracle
	smt    solver.Solver
	logger *logging.Logger

	lock     sync.RWMutex
	layouts  map[common.Address]*storage.Layout
	derivers map[common.Address]*storage.SlotDeriver
}

// NewStateModel returns a state model issuing solver queries through the given solver.
func NewStateModel(builder *symbolic.Builder, smt solver.Solver) *StateModel {
	return &StateModel{
		b:        builder,
		oracle:   storage.NewDigestOracle(builder),
		smt:      smt,
		logger:   logging.GlobalLogger.NewSubLogger("module", "execution"),
		layouts:  make(map[common.Address]*storage.Layout),
		derivers: make(map[common.Address]*storage.SlotDeriver),
	}
}

// Builder returns the expression builder shared by every path of this exploration.
func (m *StateModel) Builder() *symbolic.Builder {
	return m.b
}

// RegisterContract installs a contract's storage layout, obtained from its compiled
// artifact's layout metadata at load time. The layout is treated as read-only afterwards.
func (m *StateModel) RegisterContract(contract common.Address, layout *storage.Layout) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.layouts[contract]; ok {
		return errors.Errorf("contract %s already has a registered storage layout", contract)
	}
	m.layouts[contract] = layout
	m.derivers[contract] = storage.NewSlotDeriver(layout, m.oracle, m.b)
	return nil
}

// LayoutDescriptor returns the registered storage layout for the given contract.
func (m *StateModel) LayoutDescriptor(contract common.Address) (*storage.Layout, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	layout, ok := m.layouts[contract]
	return layout, ok
}

func (m *StateModel) deriver(contract common.Address) (*storage.SlotDeriver, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	d, ok := m.derivers[contract]
	if !ok {
		return nil, errors.Errorf("contract %s has no registered storage layout", contract)
	}
	return d, nil
}

// OnStorageRead resolves a storage read on the given path: the variable path is derived to a
// slot expression and the path's journal is walked backward through the alias decider. The
// returned value may be a conditional expression when aliasing could not be decided
// statically. ErrInfeasiblePath surfaces unchanged so the caller can prune the path.
func (m *StateModel) OnStorageRead(ctx context.Context, path *Path, contract common.Address, variablePath []storage.Accessor) (*symbolic.Expr, error) {
	d, err := m.deriver(contract)
	if err != nil {
		return nil, err
	}
	slot, err := d.DeriveSlot(variablePath)
	if err != nil {
		return nil, err
	}
	pathCondition, err := path.Condition()
	if err != nil {
		return nil, err
	}
	value, err := path.log(contract).Read(ctx, slot, pathCondition, path.decider)
	if err != nil {
		return nil, err
	}
	m.logger.Trace("storage read resolved", logging.StructuredLogInfo{
		"contract": contract.String(),
		"slot":     slot.String(),
	})
	return value, nil
}

// OnStorageWrite records a storage write on the given path's journal.
func (m *StateModel) OnStorageWrite(ctx context.Context, path *Path, contract common.Address, variablePath []storage.Accessor, value *symbolic.Expr) (*storage.Entry, error) {
	_ = ctx
	d, err := m.deriver(contract)
	if err != nil {
		return nil, err
	}
	slot, err := d.DeriveSlot(variablePath)
	if err != nil {
		return nil, err
	}
	pathCondition, err := path.Condition()
	if err != nil {
		return nil, err
	}
	entry, err := path.log(contract).Write(slot, value, pathCondition)
	if err != nil {
		return nil, err
	}
	m.logger.Trace("storage write journaled", logging.StructuredLogInfo{
		"contract": contract.String(),
		"slot":     slot.String(),
		"sequence": entry.Sequence,
	})
	return entry, nil
}
