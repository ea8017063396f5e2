// Package txcodec implements the one canonicalization rule every hash in
// this system depends on: the byte form of a value that gets fed to
// SHA256. The Merkle tree and txids (pkg/block) and the crypto
// capability's hash_transaction (pkg/cryptocap) must derive a hash the
// identical way, so the rule lives here
// once instead of being duplicated at each call site. This package is
// intentionally type-agnostic (no dependency on pkg/block) so that
// pkg/block can depend on it without an import cycle.
package txcodec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CanonicalJSON renders a value the one way this system ever hashes it:
// Go's encoding/json, which for a struct marshals fields in declaration
// order. Transactions are always marshaled as the Transaction struct (never
// as map[string]any), so this order is fixed at compile time and two
// processes running the same code always agree on it — the same contract
// the original implementation leans on by marshaling a plain dict in
// construction order rather than a sorted one.
func CanonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// HashJSON returns hex(SHA256(CanonicalJSON(v))), the formula §3 invariant 1
// names for txids and the crypto capability's hash_transaction.
func HashJSON(v any) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
