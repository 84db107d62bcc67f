package storage

import (
	"fmt"

	"github.com/holiman/uint256"
)

// LayoutKind distinguishes the storage layout shapes a declared variable (or a nested value
// inside one) can take.
type LayoutKind int

const (
	// LayoutScalar is a value occupying a fixed range of slots starting at its base slot.
	LayoutScalar LayoutKind = iota
	// LayoutMapping is a mapping whose values live at hash-derived slots.
	LayoutMapping
	// LayoutDynamicArray is a dynamic array with its length word at the base slot and its
	// elements stored contiguously starting at the hash of the base slot.
	LayoutDynamicArray
)

// String returns the layout kind name as it appears in diagnostics.
func (k LayoutKind) String() string {
	switch k {
	case LayoutScalar:
		return "scalar"
	case LayoutMapping:
		return "mapping"
	case LayoutDynamicArray:
		return "dynamic array"
	}
	return fmt.Sprintf("LayoutKind(%d)", int(k))
}

// LayoutNode describes the layout shape of one storage type, possibly nesting further shapes
// for mapping values and array elements.
type LayoutNode struct {
	// Kind is the shape of this node.
	Kind LayoutKind

	// SlotCount is the number of consecutive slots one value of this type occupies. It acts
	// as the element stride for array elements. Mappings and dynamic arrays always occupy a
	// single slot at their own position.
	SlotCount uint64

	// Value is the nested layout of mapping values or array elements. It is nil for scalars.
	Value *LayoutNode
}

// ScalarNode returns a scalar layout occupying the given number of consecutive slots.
func ScalarNode(slotCount uint64) *LayoutNode {
	return &LayoutNode{Kind: LayoutScalar, SlotCount: slotCount}
}

// WordNode returns the layout of a single-slot scalar value.
func WordNode() *LayoutNode {
	return ScalarNode(1)
}

// MappingNode returns a mapping layout with the given value layout.
func MappingNode(value *LayoutNode) *LayoutNode {
	return &LayoutNode{Kind: LayoutMapping, SlotCount: 1, Value: value}
}

// DynamicArrayNode returns a dynamic array layout with the given element layout.
func DynamicArrayNode(element *LayoutNode) *LayoutNode {
	return &LayoutNode{Kind: LayoutDynamicArray, SlotCount: 1, Value: element}
}

// Variable is one declared storage variable: a name, a fixed base slot assigned by the
// compiler, and the layout shape rooted there.
type Variable struct {
	Name string
	Slot *uint256.Int
	Type *LayoutNode
}

// Layout is the static storage layout of one contract. It is built once from the compiled
// artifact's storage layout metadata and never mutated afterwards; the slot deriver treats it
// as read-only.
type Layout struct {
	variables map[string]*Variable
	order     []string
}

// NewLayout builds a contract layout from its declared variables. Variable names and base
// slots must be distinct; the compiler guarantees declared variables never share a base slot,
// and the alias decider's non-interference rule depends on it.
func NewLayout(variables []*Variable) (*Layout, error) {
	l := &Layout{variables: make(map[string]*Variable, len(variables))}
	slots := make(map[string]string, len(variables))
	for _, v := range variables {
		if v.Type == nil || v.Slot == nil {
			return nil, fmt.Errorf("storage variable %q is missing its slot or type", v.Name)
		}
		if validErr := validateNode(v.Type); validErr != nil {
			return nil, fmt.Errorf("storage variable %q: %w", v.Name, validErr)
		}
		if _, ok := l.variables[v.Name]; ok {
			return nil, fmt.Errorf("duplicate storage variable %q", v.Name)
		}
		slotKey := v.Slot.Hex()
		if other, ok := slots[slotKey]; ok {
			return nil, fmt.Errorf("storage variables %q and %q share base slot %s", other, v.Name, slotKey)
		}
		slots[slotKey] = v.Name
		l.variables[v.Name] = v
		l.order = append(l.order, v.Name)
	}
	return l, nil
}

func validateNode(n *LayoutNode) error {
	switch n.Kind {
	case LayoutScalar:
		if n.SlotCount == 0 {
			return fmt.Errorf("scalar layout must occupy at least one slot")
		}
		if n.Value != nil {
			return fmt.Errorf("scalar layout cannot nest a value layout")
		}
		return nil
	case LayoutMapping, LayoutDynamicArray:
		if n.Value == nil {
			return fmt.Errorf("%s layout requires a value layout", n.Kind)
		}
		return validateNode(n.Value)
	}
	return fmt.Errorf("unknown layout kind %d", int(n.Kind))
}

// Variable looks up a declared storage variable by name.
func (l *Layout) Variable(name string) (*Variable, bool) {
	v, ok := l.variables[name]
	return v, ok
}

// Names returns the declared variable names in declaration order.
func (l *Layout) Names() []string {
	names := make([]string, len(l.order))
	copy(names, l.order)
	return names
}
