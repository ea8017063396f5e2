package block

import "github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/txcodec"

// TxID returns the canonical identifier of a transaction: §3 invariant 1,
// hex(SHA256(canonicalJSON(tx))). Block validation in pkg/chain, the
// mempool and block builders call this; MerkleRoot hashes the same
// txcodec.CanonicalJSON bytes for its leaves, so the two never drift apart.
func TxID(tx Transaction) (string, error) {
	return txcodec.HashJSON(tx)
}
