package symbolic

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Kind identifies the operator or leaf form of an Expr node.
type Kind int

const (
	// KindConst describes a concrete fixed-width word.
	KindConst Kind = iota
	// KindVar describes a named symbolic variable.
	KindVar
	// KindAdd describes modular addition of two words of equal width.
	KindAdd
	// KindSub describes modular subtraction of two words of equal width.
	KindSub
	// KindMul describes modular multiplication of two words of equal width.
	KindMul
	// KindConcat describes bit-level concatenation; the result width is the sum of the child widths.
	KindConcat
	// KindExtract describes extraction of the bit range [hi:lo] from its child.
	KindExtract
	// KindDigest describes an application of the uninterpreted hash function to its pre-image child.
	KindDigest
	// KindIte describes a conditional word: ite(cond, then, else) with cond boolean and equal branch widths.
	KindIte
	// KindEq describes boolean equality between two words of equal width.
	KindEq
	// KindLt describes unsigned less-than between two words of equal width.
	KindLt
	// KindAnd describes boolean conjunction.
	KindAnd
	// KindOr describes boolean disjunction.
	KindOr
	// KindNot describes boolean negation.
	KindNot
	// KindBool describes a boolean literal.
	KindBool
)

// WordWidth is the width in bits of an EVM storage word, and of every slot expression.
const WordWidth = 256

// DigestWidth is the width in bits of a hash application result.
const DigestWidth = 256

// Expr is an immutable symbolic expression node. Expressions are created exclusively through a
// Builder, which hash-conses them: two structurally equal expressions built by the same Builder
// are represented by the same *Expr. Pointer equality therefore decides structural equality.
type Expr struct {
	kind     Kind
	width    uint
	value    *uint256.Int
	boolVal  bool
	name     string
	hi, lo   uint
	children []*Expr
	hash     uint64
}

// Kind returns the node's operator or leaf form.
func (e *Expr) Kind() Kind {
	return e.kind
}

// Width returns the node's width in bits. Boolean-sorted nodes report a width of zero.
func (e *Expr) Width() uint {
	return e.width
}

// IsBool indicates whether the node is boolean-sorted rather than a bit-vector.
func (e *Expr) IsBool() bool {
	switch e.kind {
	case KindEq, KindLt, KindAnd, KindOr, KindNot, KindBool:
		return true
	}
	return false
}

// IsConst indicates whether the node is a concrete word.
func (e *Expr) IsConst() bool {
	return e.kind == KindConst
}

// Const returns the concrete word value of a KindConst node, or nil for any other node.
func (e *Expr) Const() *uint256.Int {
	if e.kind != KindConst {
		return nil
	}
	return e.value
}

// BoolConst returns the literal of a KindBool node. The second return indicates whether the
// node actually is a boolean literal.
func (e *Expr) BoolConst() (bool, bool) {
	if e.kind != KindBool {
		return false, false
	}
	return e.boolVal, true
}

// Name returns the variable name of a KindVar node, and the empty string otherwise.
func (e *Expr) Name() string {
	if e.kind != KindVar {
		return ""
	}
	return e.name
}

// Children returns the node's operands. The returned slice must not be mutated.
func (e *Expr) Children() []*Expr {
	return e.children
}

// ExtractBounds returns the (hi, lo) bit bounds of a KindExtract node.
func (e *Expr) ExtractBounds() (uint, uint) {
	return e.hi, e.lo
}

// String renders the expression in a compact prefix form for logs and error messages.
func (e *Expr) String() string {
	switch e.kind {
	case KindConst:
		return fmt.Sprintf("%#x", e.value)
	case KindBool:
		return fmt.Sprintf("%t", e.boolVal)
	case KindVar:
		return e.name
	case KindExtract:
		return fmt.Sprintf("(extract %d %d %s)", e.hi, e.lo, e.children[0])
	}
	names := map[Kind]string{
		KindAdd:    "add",
		KindSub:    "sub",
		KindMul:    "mul",
		KindConcat: "concat",
		KindDigest: "keccak256",
		KindIte:    "ite",
		KindEq:     "=",
		KindLt:     "ult",
		KindAnd:    "and",
		KindOr:     "or",
		KindNot:    "not",
	}
	parts := make([]string, 0, len(e.children)+1)
	parts = append(parts, names[e.kind])
	for _, c := range e.children {
		parts = append(parts, c.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Walk visits e and every transitive child in pre-order. Shared subtrees are visited once.
func Walk(e *Expr, visit func(*Expr)) {
	seen := make(map[*Expr]struct{})
	var walk func(*Expr)
	walk = func(n *Expr) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		visit(n)
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(e)
}

// Variables returns every distinct KindVar node reachable from e.
func Variables(e *Expr) []*Expr {
	var vars []*Expr
	Walk(e, func(n *Expr) {
		if n.kind == KindVar {
			vars = append(vars, n)
		}
	})
	return vars
}
