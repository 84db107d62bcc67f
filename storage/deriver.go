package storage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sthenolabs/stheno/symbolic"
)

// accessorKind distinguishes the three accessor forms of a variable path.
type accessorKind int

const (
	accessorField accessorKind = iota
	accessorMapKey
	accessorArrayIndex
)

// Accessor is one step of a variable path: a declared variable reference, a mapping key, or a
// dynamic array index. Paths are applied left to right starting from a declared storage
// variable.
type Accessor struct {
	kind accessorKind
	name string
	key  *symbolic.Expr
}

// Field returns an accessor selecting the declared storage variable with the given name. It is
// only valid as the first element of a variable path.
func Field(name string) Accessor {
	return Accessor{kind: accessorField, name: name}
}

// MapKey returns an accessor selecting the mapping value stored under the given key.
func MapKey(key *symbolic.Expr) Accessor {
	return Accessor{kind: accessorMapKey, key: key}
}

// ArrayIndex returns an accessor selecting the dynamic array element at the given index.
func ArrayIndex(index *symbolic.Expr) Accessor {
	return Accessor{kind: accessorArrayIndex, key: index}
}

func (a Accessor) String() string {
	switch a.kind {
	case accessorField:
		return a.name
	case accessorMapKey:
		return fmt.Sprintf("[key %s]", a.key)
	case accessorArrayIndex:
		return fmt.Sprintf("[index %s]", a.key)
	}
	return "?"
}

// Slot is a derived storage slot expression together with its provenance. The provenance (the
// declared variable the derivation started from) carries the non-interference guarantee the
// alias decider's cheap rules rely on: the layout scheme places distinct declared variables in
// regions that never overlap.
type Slot struct {
	// Expr is the word-width slot address expression.
	Expr *symbolic.Expr

	// Variable is the declared storage variable this slot was derived from.
	Variable string

	// ValueNode is the layout of the value stored at this slot.
	ValueNode *LayoutNode
}

func (s *Slot) String() string {
	return s.Expr.String()
}

// SlotDeriver computes slot expressions for variable paths against one contract's layout. It
// consults the digest oracle for the hash sub-expressions of mapping and array derivations.
// Derivations are cached by path shape so repeated accesses with the same key return the same
// Slot, structurally and by pointer.
type SlotDeriver struct {
	layout *Layout
	oracle *DigestOracle
	b      *symbolic.Builder

	lock  sync.Mutex
	cache map[string]*Slot
}

// NewSlotDeriver returns a slot deriver for the given contract layout.
func NewSlotDeriver(layout *Layout, oracle *DigestOracle, builder *symbolic.Builder) *SlotDeriver {
	return &SlotDeriver{
		layout: layout,
		oracle: oracle,
		b:      builder,
		cache:  make(map[string]*Slot),
	}
}

// cacheKey identifies a variable path shape. Key expressions are hash-consed, so their node
// pointers identify them structurally.
func cacheKey(path []Accessor) string {
	var sb strings.Builder
	for _, a := range path {
		switch a.kind {
		case accessorField:
			fmt.Fprintf(&sb, "f:%s;", a.name)
		case accessorMapKey:
			fmt.Fprintf(&sb, "k:%p;", a.key)
		case accessorArrayIndex:
			fmt.Fprintf(&sb, "i:%p;", a.key)
		}
	}
	return sb.String()
}

// DeriveSlot resolves a variable path to the storage slot it addresses. The path must begin
// with a Field accessor naming a declared variable; each subsequent accessor must match the
// layout shape at that point or the derivation fails with a LayoutMismatchError.
func (d *SlotDeriver) DeriveSlot(path []Accessor) (*Slot, error) {
	if len(path) == 0 || path[0].kind != accessorField {
		return nil, &LayoutMismatchError{Detail: "variable path must start with a declared variable"}
	}

	key := cacheKey(path)
	d.lock.Lock()
	if s, ok := d.cache[key]; ok {
		d.lock.Unlock()
		return s, nil
	}
	d.lock.Unlock()

	variable, ok := d.layout.Variable(path[0].name)
	if !ok {
		return nil, &LayoutMismatchError{Variable: path[0].name, Detail: "no such storage variable"}
	}

	slot := d.b.Word(variable.Slot)
	node := variable.Type
	for _, a := range path[1:] {
		var err error
		slot, node, err = d.step(variable.Name, slot, node, a)
		if err != nil {
			return nil, err
		}
	}

	s := &Slot{Expr: slot, Variable: variable.Name, ValueNode: node}
	d.lock.Lock()
	d.cache[key] = s
	d.lock.Unlock()
	return s, nil
}

// step applies one accessor to the current slot expression and layout node.
func (d *SlotDeriver) step(variable string, slot *symbolic.Expr, node *LayoutNode, a Accessor) (*symbolic.Expr, *LayoutNode, error) {
	switch a.kind {
	case accessorField:
		return nil, nil, &LayoutMismatchError{Variable: variable, Detail: "declared variable reference in the middle of a path"}

	case accessorMapKey:
		if node.Kind != LayoutMapping {
			return nil, nil, &LayoutMismatchError{
				Variable: variable,
				Detail:   fmt.Sprintf("mapping key applied to %s layout", node.Kind),
			}
		}
		// Mapping values live at keccak256(pad32(key) ++ pad32(slot)).
		paddedKey, err := d.padToWord(a.key)
		if err != nil {
			return nil, nil, err
		}
		preimage, err := d.b.Concat(paddedKey, slot)
		if err != nil {
			return nil, nil, err
		}
		next, err := d.oracle.Digest(preimage)
		if err != nil {
			return nil, nil, err
		}
		return next, node.Value, nil

	case accessorArrayIndex:
		if node.Kind != LayoutDynamicArray {
			return nil, nil, &LayoutMismatchError{
				Variable: variable,
				Detail:   fmt.Sprintf("array index applied to %s layout", node.Kind),
			}
		}
		// The length word lives at the base slot; elements start at keccak256(pad32(slot))
		// and advance by the element stride in slots.
		base, err := d.oracle.Digest(slot)
		if err != nil {
			return nil, nil, err
		}
		index, err := d.padToWord(a.key)
		if err != nil {
			return nil, nil, err
		}
		offset := index
		if stride := node.Value.SlotCount; stride > 1 {
			offset, err = d.b.Mul(index, d.b.ConstUint64(stride, wordWidth))
			if err != nil {
				return nil, nil, err
			}
		}
		next, err := d.b.Add(base, offset)
		if err != nil {
			return nil, nil, err
		}
		return next, node.Value, nil
	}
	return nil, nil, &LayoutMismatchError{Variable: variable, Detail: "unknown accessor kind"}
}

// padToWord zero-extends a key or index to the storage word width.
func (d *SlotDeriver) padToWord(e *symbolic.Expr) (*symbolic.Expr, error) {
	if e == nil {
		return nil, &LayoutMismatchError{Detail: "missing key expression"}
	}
	if e.IsBool() || e.Width() > wordWidth {
		return nil, &PreimageWidthMismatchError{Width: e.Width()}
	}
	if e.Width() == wordWidth {
		return e, nil
	}
	return d.b.Concat(d.b.ConstUint64(0, wordWidth-e.Width()), e)
}
