package storage

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/sthenolabs/stheno/symbolic"
	"github.com/sthenolabs/stheno/utils"
)

const wordWidth = symbolic.WordWidth

// DigestOracle is the symbolic model of the keccak256 hash used for slot derivation. It never
// inverts the hash: a pre-image with symbolic parts produces an uninterpreted function
// application node, and the solver's theory of uninterpreted functions supplies congruence
// (equal pre-images imply equal digests). Injectivity is deliberately not asserted; collisions
// stay theoretically possible and are refuted in-solver only where the theory forces it.
//
// A fully concrete pre-image folds to the real keccak256 value instead, which keeps
// concrete-key storage accesses solver-free and is sound because the fold agrees with the
// congruence axiom.
type DigestOracle struct {
	builder *symbolic.Builder

	lock sync.Mutex
	memo map[*symbolic.Expr]*symbolic.Expr
}

// NewDigestOracle returns a digest oracle producing expressions through the given builder.
func NewDigestOracle(builder *symbolic.Builder) *DigestOracle {
	return &DigestOracle{
		builder: builder,
		memo:    make(map[*symbolic.Expr]*symbolic.Expr),
	}
}

// Digest returns the symbolic hash of the given pre-image. Calls with structurally identical
// pre-images return the identical expression node, which is what lets repeated derivations for
// the same key produce comparable slot expressions. Pre-images must be a positive multiple of
// the word width, matching the slot derivation schema of word-padded components; anything else
// fails with a PreimageWidthMismatchError.
func (o *DigestOracle) Digest(preimage *symbolic.Expr) (*symbolic.Expr, error) {
	if preimage.IsBool() || preimage.Width() == 0 || preimage.Width()%wordWidth != 0 {
		return nil, &PreimageWidthMismatchError{Width: preimage.Width()}
	}

	// The builder hash-conses nodes, so the pre-image pointer is a structural identity and
	// the memo below is keyed by structural equality.
	o.lock.Lock()
	if d, ok := o.memo[preimage]; ok {
		o.lock.Unlock()
		return d, nil
	}
	o.lock.Unlock()

	digest, err := o.fold(preimage)
	if err != nil {
		return nil, err
	}

	o.lock.Lock()
	o.memo[preimage] = digest
	o.lock.Unlock()
	return digest, nil
}

// fold computes the concrete keccak256 of a pre-image with no free variables, and the
// uninterpreted application node otherwise.
func (o *DigestOracle) fold(preimage *symbolic.Expr) (*symbolic.Expr, error) {
	if len(symbolic.Variables(preimage)) == 0 {
		raw, err := symbolic.EvalBytes(preimage, nil, utils.Keccak256)
		if err == nil {
			sum := utils.Keccak256(raw)
			return o.builder.Const(new(uint256.Int).SetBytes(sum[:]), symbolic.DigestWidth), nil
		}
		// Concrete but not byte-decomposable (should not happen for schema-valid
		// pre-images); fall through to the uninterpreted form.
	}
	return o.builder.Digest(preimage)
}
