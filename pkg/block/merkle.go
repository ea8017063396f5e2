package block

import (
	"crypto/sha256"
	"fmt"

	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/txcodec"
)

// MerkleRoot computes the root hash over an ordered transaction list per
// §4.3. Leaves are single-SHA256 of each transaction's canonical JSON; the
// leaf level is duplicated to even length if odd. Interior levels are not
// rebalanced: an odd interior level (e.g. 6 leaves reducing to 3) carries
// its unpaired last node forward unchanged into the next level. The final
// single digest is hashed once more, the "double SHA at the final step"
// the spec calls out as part of the contract.
//
// An empty transaction list yields SHA256 of the empty byte string (hashed
// once), so a header can always be built even before any transaction is added.
func MerkleRoot(txs []Transaction) (string, error) {
	hashes := make([][32]byte, 0, len(txs)+1)
	for _, tx := range txs {
		data, err := txcodec.CanonicalJSON(tx)
		if err != nil {
			return "", fmt.Errorf("canonicalizing transaction for merkle leaf: %w", err)
		}
		hashes = append(hashes, sha256.Sum256(data)) //nolint:gosec // single SHA256 leaf per §4.3
	}

	if len(hashes) == 0 {
		root := sha256.Sum256(nil)
		return fmt.Sprintf("%x", root), nil
	}

	if len(hashes)%2 == 1 {
		hashes = append(hashes, hashes[len(hashes)-1])
	}

	for len(hashes) > 1 {
		next := make([][32]byte, 0, (len(hashes)+1)/2)
		for i := 0; i < len(hashes); i += 2 {
			if i+1 >= len(hashes) {
				next = append(next, hashes[i])
				continue
			}
			pair := append(append([]byte{}, hashes[i][:]...), hashes[i+1][:]...)
			next = append(next, sha256.Sum256(pair))
		}
		hashes = next
	}

	root := sha256.Sum256(hashes[0][:])
	return fmt.Sprintf("%x", root), nil
}
