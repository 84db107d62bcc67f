package symbolic

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/holiman/uint256"
)

var uint256One = uint256.NewInt(1)

// Builder creates hash-consed expressions. Structurally equal expressions requested from the
// same Builder always resolve to the same *Expr, so pointer comparison decides structural
// equality and repeated sub-expressions share memory. A Builder is safe for concurrent use;
// paths explored on separate workers share one Builder so that expressions remain comparable
// across the exploration tree.
type Builder struct {
	lock  sync.Mutex
	cache map[uint64][]*Expr
}

// NewBuilder returns an empty expression builder.
func NewBuilder() *Builder {
	return &Builder{cache: make(map[uint64][]*Expr)}
}

func hashExpr(e *Expr) uint64 {
	h := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(e.kind))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(e.width))
	_, _ = h.Write(buf[:])
	switch e.kind {
	case KindConst:
		b := e.value.Bytes32()
		_, _ = h.Write(b[:])
	case KindBool:
		if e.boolVal {
			_, _ = h.Write([]byte{1})
		} else {
			_, _ = h.Write([]byte{0})
		}
	case KindVar:
		_, _ = h.Write([]byte(e.name))
	case KindExtract:
		binary.LittleEndian.PutUint64(buf[:], uint64(e.hi)<<32|uint64(e.lo))
		_, _ = h.Write(buf[:])
	}
	for _, c := range e.children {
		binary.LittleEndian.PutUint64(buf[:], c.hash)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

func shallowEq(a, b *Expr) bool {
	if a.kind != b.kind || a.width != b.width || len(a.children) != len(b.children) {
		return false
	}
	switch a.kind {
	case KindConst:
		if !a.value.Eq(b.value) {
			return false
		}
	case KindBool:
		if a.boolVal != b.boolVal {
			return false
		}
	case KindVar:
		if a.name != b.name {
			return false
		}
	case KindExtract:
		if a.hi != b.hi || a.lo != b.lo {
			return false
		}
	}
	// Children are already hash-consed, so pointer comparison suffices.
	for i := range a.children {
		if a.children[i] != b.children[i] {
			return false
		}
	}
	return true
}

// intern returns the canonical node for e, registering it if no structurally equal node exists.
func (b *Builder) intern(e *Expr) *Expr {
	e.hash = hashExpr(e)
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, cached := range b.cache[e.hash] {
		if shallowEq(cached, e) {
			return cached
		}
	}
	b.cache[e.hash] = append(b.cache[e.hash], e)
	return e
}

// Const returns a concrete word of the given width. The value is truncated to the width.
func (b *Builder) Const(value *uint256.Int, width uint) *Expr {
	v := new(uint256.Int).Set(value)
	if width < 256 {
		mask := new(uint256.Int).Lsh(uint256.NewInt(1), width)
		mask.SubUint64(mask, 1)
		v.And(v, mask)
	}
	return b.intern(&Expr{kind: KindConst, width: width, value: v})
}

// ConstUint64 returns a concrete word of the given width from a uint64.
func (b *Builder) ConstUint64(value uint64, width uint) *Expr {
	return b.Const(uint256.NewInt(value), width)
}

// Word returns a concrete word-width constant.
func (b *Builder) Word(value *uint256.Int) *Expr {
	return b.Const(value, WordWidth)
}

// Bool returns a boolean literal.
func (b *Builder) Bool(value bool) *Expr {
	return b.intern(&Expr{kind: KindBool, boolVal: value})
}

// Var returns a named symbolic variable of the given width.
func (b *Builder) Var(name string, width uint) *Expr {
	return b.intern(&Expr{kind: KindVar, width: width, name: name})
}

func (b *Builder) binArith(kind Kind, x, y *Expr) (*Expr, error) {
	if x.IsBool() || y.IsBool() {
		return nil, fmt.Errorf("arithmetic requires bit-vector operands")
	}
	if x.width != y.width {
		return nil, fmt.Errorf("width mismatch: %d != %d", x.width, y.width)
	}
	if x.kind == KindConst && y.kind == KindConst {
		v := new(uint256.Int)
		switch kind {
		case KindAdd:
			v.Add(x.value, y.value)
		case KindSub:
			v.Sub(x.value, y.value)
		case KindMul:
			v.Mul(x.value, y.value)
		}
		return b.Const(v, x.width), nil
	}
	return b.intern(&Expr{kind: kind, width: x.width, children: []*Expr{x, y}}), nil
}

// Add returns x + y modulo 2^width. Both operands must share a width.
func (b *Builder) Add(x, y *Expr) (*Expr, error) {
	if y.kind == KindConst && y.value.IsZero() {
		return x, nil
	}
	if x.kind == KindConst && x.value.IsZero() {
		return y, nil
	}
	return b.binArith(KindAdd, x, y)
}

// Sub returns x - y modulo 2^width. Both operands must share a width.
func (b *Builder) Sub(x, y *Expr) (*Expr, error) {
	if y.kind == KindConst && y.value.IsZero() {
		return x, nil
	}
	return b.binArith(KindSub, x, y)
}

// Mul returns x * y modulo 2^width. Both operands must share a width.
func (b *Builder) Mul(x, y *Expr) (*Expr, error) {
	if y.kind == KindConst && y.value.Eq(uint256One) {
		return x, nil
	}
	if x.kind == KindConst && x.value.Eq(uint256One) {
		return y, nil
	}
	return b.binArith(KindMul, x, y)
}

// Concat returns the concatenation of the operands, most significant first. The result width
// is the sum of the operand widths.
func (b *Builder) Concat(parts ...*Expr) (*Expr, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("concat requires at least one operand")
	}
	var width uint
	for _, p := range parts {
		if p.IsBool() {
			return nil, fmt.Errorf("concat requires bit-vector operands")
		}
		width += p.width
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	children := make([]*Expr, len(parts))
	copy(children, parts)
	return b.intern(&Expr{kind: KindConcat, width: width, children: children}), nil
}

// Extract returns bits [hi:lo] of x, inclusive on both ends.
func (b *Builder) Extract(x *Expr, hi, lo uint) (*Expr, error) {
	if x.IsBool() {
		return nil, fmt.Errorf("extract requires a bit-vector operand")
	}
	if hi < lo || hi >= x.width {
		return nil, fmt.Errorf("extract bounds [%d:%d] out of range for width %d", hi, lo, x.width)
	}
	if lo == 0 && hi == x.width-1 {
		return x, nil
	}
	if x.kind == KindConst {
		v := new(uint256.Int).Rsh(x.value, lo)
		return b.Const(v, hi-lo+1), nil
	}
	return b.intern(&Expr{kind: KindExtract, width: hi - lo + 1, hi: hi, lo: lo, children: []*Expr{x}}), nil
}

// Digest returns the uninterpreted hash application node for the given pre-image. Callers
// should construct digests through the storage digest oracle rather than directly; the oracle
// layers concrete folding and width checking on top of this node form.
func (b *Builder) Digest(preimage *Expr) (*Expr, error) {
	if preimage.IsBool() {
		return nil, fmt.Errorf("digest requires a bit-vector pre-image")
	}
	return b.intern(&Expr{kind: KindDigest, width: DigestWidth, children: []*Expr{preimage}}), nil
}

// Ite returns a conditional word selecting thenExpr when cond holds and elseExpr otherwise.
func (b *Builder) Ite(cond, thenExpr, elseExpr *Expr) (*Expr, error) {
	if !cond.IsBool() {
		return nil, fmt.Errorf("ite condition must be boolean")
	}
	if thenExpr.IsBool() || elseExpr.IsBool() || thenExpr.width != elseExpr.width {
		return nil, fmt.Errorf("ite branches must be bit-vectors of equal width")
	}
	if lit, ok := cond.BoolConst(); ok {
		if lit {
			return thenExpr, nil
		}
		return elseExpr, nil
	}
	if thenExpr == elseExpr {
		return thenExpr, nil
	}
	return b.intern(&Expr{kind: KindIte, width: thenExpr.width, children: []*Expr{cond, thenExpr, elseExpr}}), nil
}

// Eq returns the boolean equality of two words of equal width.
func (b *Builder) Eq(x, y *Expr) (*Expr, error) {
	if x.IsBool() || y.IsBool() {
		return nil, fmt.Errorf("eq requires bit-vector operands")
	}
	if x.width != y.width {
		return nil, fmt.Errorf("width mismatch: %d != %d", x.width, y.width)
	}
	if x == y {
		return b.Bool(true), nil
	}
	if x.kind == KindConst && y.kind == KindConst {
		return b.Bool(x.value.Eq(y.value)), nil
	}
	return b.intern(&Expr{kind: KindEq, children: []*Expr{x, y}}), nil
}

// Lt returns the unsigned comparison x < y of two words of equal width.
func (b *Builder) Lt(x, y *Expr) (*Expr, error) {
	if x.IsBool() || y.IsBool() {
		return nil, fmt.Errorf("ult requires bit-vector operands")
	}
	if x.width != y.width {
		return nil, fmt.Errorf("width mismatch: %d != %d", x.width, y.width)
	}
	if x.kind == KindConst && y.kind == KindConst {
		return b.Bool(x.value.Lt(y.value)), nil
	}
	return b.intern(&Expr{kind: KindLt, children: []*Expr{x, y}}), nil
}

// And returns the conjunction of the boolean operands. An empty conjunction is true.
func (b *Builder) And(conds ...*Expr) (*Expr, error) {
	flat := make([]*Expr, 0, len(conds))
	for _, c := range conds {
		if !c.IsBool() {
			return nil, fmt.Errorf("and requires boolean operands")
		}
		if lit, ok := c.BoolConst(); ok {
			if !lit {
				return b.Bool(false), nil
			}
			continue
		}
		flat = append(flat, c)
	}
	switch len(flat) {
	case 0:
		return b.Bool(true), nil
	case 1:
		return flat[0], nil
	}
	return b.intern(&Expr{kind: KindAnd, children: flat}), nil
}

// Or returns the disjunction of the boolean operands. An empty disjunction is false.
func (b *Builder) Or(conds ...*Expr) (*Expr, error) {
	flat := make([]*Expr, 0, len(conds))
	for _, c := range conds {
		if !c.IsBool() {
			return nil, fmt.Errorf("or requires boolean operands")
		}
		if lit, ok := c.BoolConst(); ok {
			if lit {
				return b.Bool(true), nil
			}
			continue
		}
		flat = append(flat, c)
	}
	switch len(flat) {
	case 0:
		return b.Bool(false), nil
	case 1:
		return flat[0], nil
	}
	return b.intern(&Expr{kind: KindOr, children: flat}), nil
}

// Not returns the negation of the boolean operand.
func (b *Builder) Not(cond *Expr) (*Expr, error) {
	if !cond.IsBool() {
		return nil, fmt.Errorf("not requires a boolean operand")
	}
	if lit, ok := cond.BoolConst(); ok {
		return b.Bool(!lit), nil
	}
	if cond.kind == KindNot {
		return cond.children[0], nil
	}
	return b.intern(&Expr{kind: KindNot, children: []*Expr{cond}}), nil
}
