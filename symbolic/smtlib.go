package symbolic

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// plainSymbolPattern matches names that SMT-LIB2 accepts without quoting.
var plainSymbolPattern = regexp.MustCompile(`^[a-zA-Z~!@$%^&*_+=<>.?/-][a-zA-Z0-9~!@$%^&*_+=<>.?/-]*$`)

// Encoder serializes expressions into SMT-LIB2 scripts for an external solver. Encoding is
// purely syntactic; the solver's theory of uninterpreted functions supplies digest congruence,
// so no axioms beyond the declarations are emitted.
type Encoder struct{}

// NewEncoder returns an SMT-LIB2 encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

func sortString(e *Expr) string {
	if e.IsBool() {
		return "Bool"
	}
	return fmt.Sprintf("(_ BitVec %d)", e.Width())
}

func symbolString(name string) string {
	if plainSymbolPattern.MatchString(name) {
		return name
	}
	return "|" + name + "|"
}

func digestFuncName(preimageWidth uint) string {
	return fmt.Sprintf("keccak256_%d", preimageWidth)
}

func constString(e *Expr) string {
	if e.Width()%4 == 0 {
		b := e.Const().Bytes32()
		hexDigits := int(e.Width() / 4)
		full := fmt.Sprintf("%x", b)
		return "#x" + full[len(full)-hexDigits:]
	}
	return fmt.Sprintf("(_ bv%s %d)", e.Const().Dec(), e.Width())
}

// exprString renders a single expression term.
func (enc *Encoder) exprString(e *Expr) string {
	switch e.Kind() {
	case KindConst:
		return constString(e)
	case KindBool:
		if v, _ := e.BoolConst(); v {
			return "true"
		}
		return "false"
	case KindVar:
		return symbolString(e.Name())
	case KindExtract:
		hi, lo := e.ExtractBounds()
		return fmt.Sprintf("((_ extract %d %d) %s)", hi, lo, enc.exprString(e.Children()[0]))
	case KindDigest:
		pre := e.Children()[0]
		return fmt.Sprintf("(%s %s)", digestFuncName(pre.Width()), enc.exprString(pre))
	}
	ops := map[Kind]string{
		KindAdd:    "bvadd",
		KindSub:    "bvsub",
		KindMul:    "bvmul",
		KindConcat: "concat",
		KindIte:    "ite",
		KindEq:     "=",
		KindLt:     "bvult",
		KindAnd:    "and",
		KindOr:     "or",
		KindNot:    "not",
	}
	parts := make([]string, 0, len(e.Children())+1)
	parts = append(parts, ops[e.Kind()])
	for _, c := range e.Children() {
		parts = append(parts, enc.exprString(c))
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Encode produces a complete SMT-LIB2 script asserting every provided expression, ending with
// (check-sat). When getValues is non-empty, a (get-value ...) command for those variable names
// is appended so a satisfying assignment can be read back.
func (enc *Encoder) Encode(assertions []*Expr, getValues []string) (string, error) {
	vars := make(map[string]uint)
	digestWidths := make(map[uint]struct{})
	for _, a := range assertions {
		if !a.IsBool() {
			return "", fmt.Errorf("assertion must be boolean, got %s", a)
		}
		Walk(a, func(n *Expr) {
			switch n.Kind() {
			case KindVar:
				vars[n.Name()] = n.Width()
			case KindDigest:
				digestWidths[n.Children()[0].Width()] = struct{}{}
			}
		})
	}

	var sb strings.Builder
	sb.WriteString("(set-logic QF_UFBV)\n")

	varNames := make([]string, 0, len(vars))
	for name := range vars {
		varNames = append(varNames, name)
	}
	sort.Strings(varNames)
	for _, name := range varNames {
		fmt.Fprintf(&sb, "(declare-const %s (_ BitVec %d))\n", symbolString(name), vars[name])
	}

	widths := make([]uint, 0, len(digestWidths))
	for w := range digestWidths {
		widths = append(widths, w)
	}
	sort.Slice(widths, func(i, j int) bool { return widths[i] < widths[j] })
	for _, w := range widths {
		fmt.Fprintf(&sb, "(declare-fun %s ((_ BitVec %d)) (_ BitVec %d))\n", digestFuncName(w), w, DigestWidth)
	}

	for _, a := range assertions {
		fmt.Fprintf(&sb, "(assert %s)\n", enc.exprString(a))
	}
	sb.WriteString("(check-sat)\n")
	if len(getValues) > 0 {
		quoted := make([]string, len(getValues))
		for i, name := range getValues {
			quoted[i] = symbolString(name)
		}
		fmt.Fprintf(&sb, "(get-value (%s))\n", strings.Join(quoted, " "))
	}
	return sb.String(), nil
}
