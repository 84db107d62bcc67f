package symbolic

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Assignment maps symbolic variable names to concrete word values for evaluation under a
// solver model.
type Assignment map[string]*uint256.Int

// DigestFunc computes the concrete hash of a byte pre-image. Evaluation uses it to fold
// digest nodes once their pre-images become concrete under an assignment.
type DigestFunc func(preimage []byte) [32]byte

// Eval evaluates a bit-vector expression to a concrete word under the given assignment.
// Every variable appearing in the expression must be assigned, and every node must be
// byte-aligned (width divisible by 8); slot and value expressions produced by the storage
// model always are.
func Eval(e *Expr, env Assignment, digest DigestFunc) (*uint256.Int, error) {
	raw, err := evalBytes(e, env, digest)
	if err != nil {
		return nil, err
	}
	if len(raw) > 32 {
		raw = raw[len(raw)-32:]
	}
	return new(uint256.Int).SetBytes(raw), nil
}

// EvalBytes evaluates a bit-vector expression to its big-endian byte representation of
// exactly width/8 bytes. Unlike Eval it preserves widths beyond 256 bits, which matters for
// digest pre-images built by concatenation.
func EvalBytes(e *Expr, env Assignment, digest DigestFunc) ([]byte, error) {
	return evalBytes(e, env, digest)
}

// EvalBool evaluates a boolean expression under the given assignment.
func EvalBool(e *Expr, env Assignment, digest DigestFunc) (bool, error) {
	if !e.IsBool() {
		return false, fmt.Errorf("expected a boolean expression, got %s", e)
	}
	switch e.Kind() {
	case KindBool:
		v, _ := e.BoolConst()
		return v, nil
	case KindNot:
		v, err := EvalBool(e.Children()[0], env, digest)
		return !v, err
	case KindAnd:
		for _, c := range e.Children() {
			v, err := EvalBool(c, env, digest)
			if err != nil || !v {
				return false, err
			}
		}
		return true, nil
	case KindOr:
		for _, c := range e.Children() {
			v, err := EvalBool(c, env, digest)
			if err != nil || v {
				return v, err
			}
		}
		return false, nil
	case KindEq:
		x, err := Eval(e.Children()[0], env, digest)
		if err != nil {
			return false, err
		}
		y, err := Eval(e.Children()[1], env, digest)
		if err != nil {
			return false, err
		}
		return x.Eq(y), nil
	case KindLt:
		x, err := Eval(e.Children()[0], env, digest)
		if err != nil {
			return false, err
		}
		y, err := Eval(e.Children()[1], env, digest)
		if err != nil {
			return false, err
		}
		return x.Lt(y), nil
	}
	return false, fmt.Errorf("cannot evaluate %s", e)
}

// evalBytes evaluates a bit-vector expression to its big-endian byte representation of
// exactly width/8 bytes.
func evalBytes(e *Expr, env Assignment, digest DigestFunc) ([]byte, error) {
	if e.Width()%8 != 0 {
		return nil, fmt.Errorf("cannot evaluate non-byte-aligned expression of width %d", e.Width())
	}
	size := int(e.Width() / 8)

	toBytes := func(v *uint256.Int) []byte {
		b := v.Bytes32()
		if size <= 32 {
			return b[32-size:]
		}
		out := make([]byte, size)
		copy(out[size-32:], b[:])
		return out
	}

	switch e.Kind() {
	case KindConst:
		return toBytes(e.Const()), nil
	case KindVar:
		v, ok := env[e.Name()]
		if !ok {
			return nil, fmt.Errorf("unassigned variable %q", e.Name())
		}
		return toBytes(v), nil
	case KindConcat:
		out := make([]byte, 0, size)
		for _, c := range e.Children() {
			cb, err := evalBytes(c, env, digest)
			if err != nil {
				return nil, err
			}
			out = append(out, cb...)
		}
		return out, nil
	case KindDigest:
		pre, err := evalBytes(e.Children()[0], env, digest)
		if err != nil {
			return nil, err
		}
		if digest == nil {
			return nil, fmt.Errorf("no digest function provided")
		}
		sum := digest(pre)
		return sum[:], nil
	case KindExtract:
		hi, lo := e.ExtractBounds()
		if lo%8 != 0 || (hi+1)%8 != 0 {
			return nil, fmt.Errorf("cannot evaluate non-byte-aligned extract [%d:%d]", hi, lo)
		}
		cb, err := evalBytes(e.Children()[0], env, digest)
		if err != nil {
			return nil, err
		}
		end := len(cb) - int(lo/8)
		start := len(cb) - int((hi+1)/8)
		return cb[start:end], nil
	case KindIte:
		cond, err := EvalBool(e.Children()[0], env, digest)
		if err != nil {
			return nil, err
		}
		if cond {
			return evalBytes(e.Children()[1], env, digest)
		}
		return evalBytes(e.Children()[2], env, digest)
	case KindAdd, KindSub, KindMul:
		x, err := Eval(e.Children()[0], env, digest)
		if err != nil {
			return nil, err
		}
		y, err := Eval(e.Children()[1], env, digest)
		if err != nil {
			return nil, err
		}
		v := new(uint256.Int)
		switch e.Kind() {
		case KindAdd:
			v.Add(x, y)
		case KindSub:
			v.Sub(x, y)
		case KindMul:
			v.Mul(x, y)
		}
		if e.Width() < 256 {
			mask := new(uint256.Int).Lsh(uint256.NewInt(1), e.Width())
			mask.SubUint64(mask, 1)
			v.And(v, mask)
		}
		return toBytes(v), nil
	}
	return nil, fmt.Errorf("cannot evaluate %s", e)
}
