package execution

import (
	"context"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/sthenolabs/stheno/solver"
	"github.com/sthenolabs/stheno/storage"
	"github.com/sthenolabs/stheno/symbolic"
)

var testContract = common.HexToAddress("0x0102030405060708091011121314151617181920")

// scriptedSolver is a solver stub answering queries from a prepared list of results, in order.
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

func tokenLayout(t *testing.T) *storage.Layout {
	layout, err := storage.NewLayout([]*storage.Variable{
		{Name: "owner", Slot: uint256.NewInt(0), Type: storage.WordNode()},
		{Name: "balances", Slot: uint256.NewInt(1), Type: storage.MappingNode(storage.WordNode())},
	})
	assert.NoError(t, err)
	return layout
}

// TestStateModelReadWrite verifies a write through the model is visible to a subsequent read of
// the same variable path, and invisible to other variables, without consulting the solver.
func TestStateModelReadWrite(t *testing.T) {
	b := symbolic.NewBuilder()
	smt := &scriptedSolver{}
	model := NewStateModel(b, smt)
	assert.NoError(t, model.RegisterContract(testContract, tokenLayout(t)))

	path := NewRootPath(b, smt)
	ctx := context.Background()

	key := b.Var("k", symbolic.WordWidth)
	balancePath := []storage.Accessor{storage.Field("balances"), storage.MapKey(key)}
	value := b.Word(uint256.NewInt(1000))

	entry, err := model.OnStorageWrite(ctx, path, testContract, balancePath, value)
	assert.NoError(t, err)
	assert.EqualValues(t, 0, entry.Sequence)

	got, err := model.OnStorageRead(ctx, path, testContract, balancePath)
	assert.NoError(t, err)
	assert.Same(t, value, got)

	// Another declared variable is untouched.
	got, err = model.OnStorageRead(ctx, path, testContract, []storage.Accessor{storage.Field("owner")})
	assert.NoError(t, err)
	assert.True(t, got.IsConst())
	assert.True(t, got.Const().IsZero())

	assert.Empty(t, smt.queries)
}

// TestStateModelRegistration verifies layout registration is required and unique.
func TestStateModelRegistration(t *testing.T) {
	b := symbolic.NewBuilder()
	model := NewStateModel(b, &scriptedSolver{})
	path := NewRootPath(b, &scriptedSolver{})

	_, err := model.OnStorageRead(context.Background(), path, testContract, []storage.Accessor{storage.Field("owner")})
	assert.ErrorContains(t, err, "no registered storage layout")

	assert.NoError(t, model.RegisterContract(testContract, tokenLayout(t)))
	assert.ErrorContains(t, model.RegisterContract(testContract, tokenLayout(t)), "already")

	layout, ok := model.LayoutDescriptor(testContract)
	assert.True(t, ok)
	assert.Equal(t, []string{"owner", "balances"}, layout.Names())
}

// TestCheckAssertionOutcomes verifies the solver answer maps onto the assertion outcome, with
// timeouts explicitly indeterminate rather than safe.
func TestCheckAssertionOutcomes(t *testing.T) {
	ctx := context.Background()

	run := func(scripted *solver.CheckResult) (*AssertionResult, *scriptedSolver) {
		b := symbolic.NewBuilder()
		smt := &scriptedSolver{results: []*solver.CheckResult{scripted}}
		model := NewStateModel(b, smt)
		path := NewRootPath(b, smt)

		violation, err := b.Lt(b.Var("x", symbolic.WordWidth), b.Word(uint256.NewInt(10)))
		assert.NoError(t, err)
		result, err := model.CheckAssertion(ctx, path, violation)
		assert.NoError(t, err)
		return result, smt
	}

	result, _ := run(&solver.CheckResult{Result: solver.ResultUnsat})
	assert.Equal(t, OutcomeSafe, result.Outcome)

	witness := symbolic.Assignment{"x": uint256.NewInt(3)}
	result, smt := run(&solver.CheckResult{Result: solver.ResultSat, Values: witness})
	assert.Equal(t, OutcomeViolated, result.Outcome)
	assert.Equal(t, witness, result.Model)
	// The query asked for every involved variable's value.
	assert.Contains(t, smt.queries[0].ValueNames, "x")

	result, _ = run(&solver.CheckResult{Result: solver.ResultUnknown, TimedOut: true})
	assert.Equal(t, OutcomeIndeterminate, result.Outcome)
	assert.True(t, result.TimedOut)
}
