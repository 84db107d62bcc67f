package storage

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/sthenolabs/stheno/symbolic"
	"github.com/sthenolabs/stheno/utils"
)

// testLayout builds a layout exercising every shape: a scalar, a mapping, a nested mapping,
// and dynamic arrays with single-slot and multi-slot elements.
func testLayout(t *testing.T) *Layout {
	layout, err := NewLayout([]*Variable{
		{Name: "owner", Slot: uint256.NewInt(0), Type: WordNode()},
		{Name: "balances", Slot: uint256.NewInt(1), Type: MappingNode(WordNode())},
		{Name: "allowances", Slot: uint256.NewInt(2), Type: MappingNode(MappingNode(WordNode()))},
		{Name: "items", Slot: uint256.NewInt(3), Type: DynamicArrayNode(WordNode())},
		{Name: "entries", Slot: uint256.NewInt(4), Type: DynamicArrayNode(ScalarNode(3))},
	})
	assert.NoError(t, err)
	return layout
}

// TestDeriveScalarSlot verifies a declared variable resolves to its compiler-assigned base slot.
func TestDeriveScalarSlot(t *testing.T) {
	b := symbolic.NewBuilder()
	deriver := NewSlotDeriver(testLayout(t), NewDigestOracle(b), b)

	slot, err := deriver.DeriveSlot([]Accessor{Field("owner")})
	assert.NoError(t, err)
	assert.True(t, slot.Expr.IsConst())
	assert.EqualValues(t, 0, slot.Expr.Const().Uint64())
	assert.Equal(t, "owner", slot.Variable)
	assert.Equal(t, LayoutScalar, slot.ValueNode.Kind)
}

// TestDeriveMappingSlot verifies mapping values live at keccak256(pad32(key) ++ pad32(slot)).
func TestDeriveMappingSlot(t *testing.T) {
	b := symbolic.NewBuilder()
	oracle := NewDigestOracle(b)
	deriver := NewSlotDeriver(testLayout(t), oracle, b)

	key := b.Var("k", symbolic.WordWidth)
	slot, err := deriver.DeriveSlot([]Accessor{Field("balances"), MapKey(key)})
	assert.NoError(t, err)

	preimage, err := b.Concat(key, b.Word(uint256.NewInt(1)))
	assert.NoError(t, err)
	expected, err := oracle.Digest(preimage)
	assert.NoError(t, err)
	assert.Same(t, expected, slot.Expr)

	// Narrow keys zero-extend to the word width before hashing.
	addr := b.Var("a", 160)
	narrow, err := deriver.DeriveSlot([]Accessor{Field("balances"), MapKey(addr)})
	assert.NoError(t, err)
	padded, err := b.Concat(b.ConstUint64(0, symbolic.WordWidth-160), addr)
	assert.NoError(t, err)
	paddedPreimage, err := b.Concat(padded, b.Word(uint256.NewInt(1)))
	assert.NoError(t, err)
	expected, err = oracle.Digest(paddedPreimage)
	assert.NoError(t, err)
	assert.Same(t, expected, narrow.Expr)
}

// TestDeriveMappingSlotConcreteKey verifies a concrete key folds the whole derivation to the
// real keccak256 value, keeping concrete accesses solver-free.
func TestDeriveMappingSlotConcreteKey(t *testing.T) {
	b := symbolic.NewBuilder()
	deriver := NewSlotDeriver(testLayout(t), NewDigestOracle(b), b)

	slot, err := deriver.DeriveSlot([]Accessor{Field("balances"), MapKey(b.Word(uint256.NewInt(7)))})
	assert.NoError(t, err)
	assert.True(t, slot.Expr.IsConst())

	var raw [64]byte
	raw[31] = 7
	raw[63] = 1
	expected := utils.Keccak256(raw[:])
	assert.Equal(t, new(uint256.Int).SetBytes(expected[:]), slot.Expr.Const())
}

// TestDeriveNestedMappingSlot verifies recursive derivation through a mapping of mappings.
func TestDeriveNestedMappingSlot(t *testing.T) {
	b := symbolic.NewBuilder()
	oracle := NewDigestOracle(b)
	deriver := NewSlotDeriver(testLayout(t), oracle, b)

	k1 := b.Var("k1", symbolic.WordWidth)
	k2 := b.Var("k2", symbolic.WordWidth)
	slot, err := deriver.DeriveSlot([]Accessor{Field("allowances"), MapKey(k1), MapKey(k2)})
	assert.NoError(t, err)

	inner, err := b.Concat(k1, b.Word(uint256.NewInt(2)))
	assert.NoError(t, err)
	innerDigest, err := oracle.Digest(inner)
	assert.NoError(t, err)
	outer, err := b.Concat(k2, innerDigest)
	assert.NoError(t, err)
	expected, err := oracle.Digest(outer)
	assert.NoError(t, err)
	assert.Same(t, expected, slot.Expr)
	assert.Equal(t, LayoutScalar, slot.ValueNode.Kind)
}

// TestDeriveArraySlot verifies dynamic array elements live at keccak256(pad32(slot)) plus the
// index scaled by the element stride, while the length word keeps the base slot.
func TestDeriveArraySlot(t *testing.T) {
	b := symbolic.NewBuilder()
	oracle := NewDigestOracle(b)
	deriver := NewSlotDeriver(testLayout(t), oracle, b)

	index := b.Var("i", symbolic.WordWidth)
	slot, err := deriver.DeriveSlot([]Accessor{Field("items"), ArrayIndex(index)})
	assert.NoError(t, err)

	base, err := oracle.Digest(b.Word(uint256.NewInt(3)))
	assert.NoError(t, err)
	expected, err := b.Add(base, index)
	assert.NoError(t, err)
	assert.Same(t, expected, slot.Expr)

	// The length word is addressed by the bare variable path.
	length, err := deriver.DeriveSlot([]Accessor{Field("items")})
	assert.NoError(t, err)
	assert.True(t, length.Expr.IsConst())
	assert.EqualValues(t, 3, length.Expr.Const().Uint64())

	// Multi-slot elements scale the index by their stride.
	wide, err := deriver.DeriveSlot([]Accessor{Field("entries"), ArrayIndex(index)})
	assert.NoError(t, err)
	wideBase, err := oracle.Digest(b.Word(uint256.NewInt(4)))
	assert.NoError(t, err)
	offset, err := b.Mul(index, b.ConstUint64(3, symbolic.WordWidth))
	assert.NoError(t, err)
	wideExpected, err := b.Add(wideBase, offset)
	assert.NoError(t, err)
	assert.Same(t, wideExpected, wide.Expr)
}

// TestDeriveSlotCaching verifies repeated derivations of the same path return the same Slot.
func TestDeriveSlotCaching(t *testing.T) {
	b := symbolic.NewBuilder()
	deriver := NewSlotDeriver(testLayout(t), NewDigestOracle(b), b)

	key := b.Var("k", symbolic.WordWidth)
	first, err := deriver.DeriveSlot([]Accessor{Field("balances"), MapKey(key)})
	assert.NoError(t, err)
	second, err := deriver.DeriveSlot([]Accessor{Field("balances"), MapKey(key)})
	assert.NoError(t, err)
	assert.Same(t, first, second)

	other, err := deriver.DeriveSlot([]Accessor{Field("balances"), MapKey(b.Var("other", symbolic.WordWidth))})
	assert.NoError(t, err)
	assert.NotSame(t, first, other)
}

// TestDeriveSlotLayoutMismatches verifies accessors are validated against the layout shape.
func TestDeriveSlotLayoutMismatches(t *testing.T) {
	b := symbolic.NewBuilder()
	deriver := NewSlotDeriver(testLayout(t), NewDigestOracle(b), b)
	key := b.Var("k", symbolic.WordWidth)

	var layoutErr *LayoutMismatchError
	_, err := deriver.DeriveSlot(nil)
	assert.ErrorAs(t, err, &layoutErr)

	_, err = deriver.DeriveSlot([]Accessor{MapKey(key)})
	assert.ErrorAs(t, err, &layoutErr)

	_, err = deriver.DeriveSlot([]Accessor{Field("missing")})
	assert.ErrorAs(t, err, &layoutErr)

	_, err = deriver.DeriveSlot([]Accessor{Field("owner"), MapKey(key)})
	assert.ErrorAs(t, err, &layoutErr)

	_, err = deriver.DeriveSlot([]Accessor{Field("balances"), ArrayIndex(key)})
	assert.ErrorAs(t, err, &layoutErr)

	_, err = deriver.DeriveSlot([]Accessor{Field("balances"), MapKey(key), Field("owner")})
	assert.ErrorAs(t, err, &layoutErr)
}
