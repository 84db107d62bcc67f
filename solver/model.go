package solver

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/sthenolabs/stheno/symbolic"
)

// modelValuePattern matches one binding of a (get-value ...) answer: a symbol followed by a
// bit-vector literal in hexadecimal, binary, or (_ bvN w) form.
var modelValuePattern = regexp.MustCompile(`\(\s*\|?([^|()\s]+)\|?\s+(#x[0-9a-fA-F]+|#b[01]+|\(\s*_\s+bv([0-9]+)\s+[0-9]+\s*\))\s*\)`)

// parseModelValues extracts the variable assignment from the solver's (get-value ...) answer.
func parseModelValues(output string) (symbolic.Assignment, error) {
	values := make(symbolic.Assignment)
	for _, match := range modelValuePattern.FindAllStringSubmatch(output, -1) {
		name := match[1]
		literal := match[2]
		var digits string
		base := 10
		switch {
		case strings.HasPrefix(literal, "#x"):
			digits, base = strings.TrimPrefix(literal, "#x"), 16
		case strings.HasPrefix(literal, "#b"):
			digits, base = strings.TrimPrefix(literal, "#b"), 2
		default:
			digits = match[3]
		}
		// Solvers zero-pad literals to the sort width, so parse through big.Int rather than
		// the stricter canonical-form uint256 parsers.
		parsed, ok := new(big.Int).SetString(digits, base)
		if !ok {
			return nil, errors.Errorf("malformed model value %q for %q", literal, name)
		}
		value := new(uint256.Int)
		if overflow := value.SetFromBig(parsed); overflow {
			return nil, errors.Errorf("model value %q for %q exceeds 256 bits", literal, name)
		}
		values[name] = value
	}
	return values, nil
}
