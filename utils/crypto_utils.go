package utils

import (
	"golang.org/x/crypto/sha3"
)

// Keccak256 computes the keccak256 digest of the given data. This is the concrete counterpart
// of the uninterpreted hash the storage model reasons with symbolically; the two must agree on
// concrete inputs for counterexample models to replay.
func Keccak256(data []byte) [32]byte {
	var digest [32]byte
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(data)
	copy(digest[:], hasher.Sum(nil))
	return digest
}
