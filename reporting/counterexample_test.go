package reporting

import (
	"context"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/sthenolabs/stheno/execution"
	"github.com/sthenolabs/stheno/solver"
	"github.com/sthenolabs/stheno/storage"
	"github.com/sthenolabs/stheno/symbolic"
)

var testContract = common.HexToAddress("0x2122232425262728293031323334353637383940")

// stubSolver answers every query as unknown; the reporting tests never reach the solver.
type stubSolver struct{}

func (s *stubSolver) CheckSat(ctx context.Context, query solver.Query) (*solver.CheckResult, error) {
	return &solver.CheckResult{Result: solver.ResultUnknown}, nil
}

// violatingPath builds a path with one constraint and one journaled write.
func violatingPath(t *testing.T) (*execution.Path, *execution.AssertionResult) {
	b := symbolic.NewBuilder()
	smt := &stubSolver{}
	model := execution.NewStateModel(b, smt)

	layout, err := storage.NewLayout([]*storage.Variable{
		{Name: "balances", Slot: uint256.NewInt(1), Type: storage.MappingNode(storage.WordNode())},
	})
	assert.NoError(t, err)
	assert.NoError(t, model.RegisterContract(testContract, layout))

	key := b.Var("k", symbolic.WordWidth)
	constraint, err := b.Lt(key, b.Word(uint256.NewInt(100)))
	assert.NoError(t, err)
	path := execution.NewRootPath(b, smt).Constrain(constraint)

	accessors := []storage.Accessor{storage.Field("balances"), storage.MapKey(key)}
	_, err = model.OnStorageWrite(context.Background(), path, testContract, accessors, b.Word(uint256.NewInt(7)))
	assert.NoError(t, err)

	result := &execution.AssertionResult{
		Outcome: execution.OutcomeViolated,
		Model:   symbolic.Assignment{"k": uint256.NewInt(42)},
	}
	return path, result
}

// TestCounterexampleRoundTrip verifies a counterexample survives serialization to disk.
func TestCounterexampleRoundTrip(t *testing.T) {
	path, result := violatingPath(t)

	counterexample, err := NewCounterexample(path, result)
	assert.NoError(t, err)
	assert.Equal(t, path.ID().String(), counterexample.PathID)
	assert.NotEmpty(t, counterexample.PathCondition)
	assert.Len(t, counterexample.Writes, 1)
	assert.Equal(t, testContract.String(), counterexample.Writes[0].Contract)
	assert.EqualValues(t, 0, counterexample.Writes[0].Sequence)
	assert.Equal(t, "0x2a", counterexample.Model["k"])

	reporter, err := NewReporter(t.TempDir())
	assert.NoError(t, err)
	filePath, err := reporter.Save(counterexample)
	assert.NoError(t, err)

	loaded, err := LoadCounterexample(filePath)
	assert.NoError(t, err)
	assert.Equal(t, counterexample, loaded)
}

// TestModelString verifies the console rendering is deterministic and sorted by variable name.
func TestModelString(t *testing.T) {
	c := &Counterexample{Model: map[string]string{"b": "0x2", "a": "0x1"}}
	assert.Equal(t, "[a = 0x1, b = 0x2]", c.ModelString())
}
