package execution

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/sthenolabs/stheno/storage"
	"github.com/sthenolabs/stheno/symbolic"
)

// TestPathBranch verifies branching produces two children with complementary conditions and
// isolated journals.
func TestPathBranch(t *testing.T) {
	b := symbolic.NewBuilder()
	smt := &scriptedSolver{}
	model := NewStateModel(b, smt)
	assert.NoError(t, model.RegisterContract(testContract, tokenLayout(t)))
	ctx := context.Background()

	root := NewRootPath(b, smt)
	rootCondition, err := root.Condition()
	assert.NoError(t, err)
	lit, ok := rootCondition.BoolConst()
	assert.True(t, ok)
	assert.True(t, lit)

	ownerPath := []storage.Accessor{storage.Field("owner")}
	inherited := b.Word(uint256.NewInt(1))
	_, err = model.OnStorageWrite(ctx, root, testContract, ownerPath, inherited)
	assert.NoError(t, err)

	cond, err := b.Lt(b.Var("x", symbolic.WordWidth), b.Word(uint256.NewInt(10)))
	assert.NoError(t, err)
	left, right, err := root.Branch(cond)
	assert.NoError(t, err)
	assert.NotEqual(t, left.ID(), right.ID())

	leftCondition, err := left.Condition()
	assert.NoError(t, err)
	assert.Same(t, cond, leftCondition)
	rightCondition, err := right.Condition()
	assert.NoError(t, err)
	negated, err := b.Not(cond)
	assert.NoError(t, err)
	assert.Same(t, negated, rightCondition)

	// Both children inherit the parent's write; the left child's own write stays invisible to
	// the right child.
	leftValue := b.Word(uint256.NewInt(2))
	_, err = model.OnStorageWrite(ctx, left, testContract, ownerPath, leftValue)
	assert.NoError(t, err)

	got, err := model.OnStorageRead(ctx, left, testContract, ownerPath)
	assert.NoError(t, err)
	assert.Same(t, leftValue, got)
	got, err = model.OnStorageRead(ctx, right, testContract, ownerPath)
	assert.NoError(t, err)
	assert.Same(t, inherited, got)

	// The full history is visible through the child that wrote.
	history := left.WriteHistory(testContract)
	assert.Len(t, history, 2)
	assert.Same(t, inherited, history[0].Value)
	assert.Same(t, leftValue, history[1].Value)

	assert.Len(t, left.Contracts(), 1)
}

// TestPathConstrain verifies constraining accumulates conditions in conjunction.
func TestPathConstrain(t *testing.T) {
	b := symbolic.NewBuilder()
	root := NewRootPath(b, &scriptedSolver{})

	x := b.Var("x", symbolic.WordWidth)
	first, err := b.Lt(x, b.Word(uint256.NewInt(100)))
	assert.NoError(t, err)
	second, err := b.Lt(b.Word(uint256.NewInt(10)), x)
	assert.NoError(t, err)

	constrained := root.Constrain(first).Constrain(second)
	condition, err := constrained.Condition()
	assert.NoError(t, err)
	expected, err := b.And(first, second)
	assert.NoError(t, err)
	assert.Same(t, expected, condition)

	// The root path itself is unchanged.
	rootCondition, err := root.Condition()
	assert.NoError(t, err)
	lit, ok := rootCondition.BoolConst()
	assert.True(t, ok)
	assert.True(t, lit)
}
