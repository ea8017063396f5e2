package block

import "testing"

// P1: merkle_root yields the same root for the same ordered list.
func TestMerkleRootDeterministic(t *testing.T) {
	txs := []Transaction{sampleTx(100), sampleTx(200), sampleTx(300)}

	r1, err := MerkleRoot(txs)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := MerkleRoot(txs)
	if err != nil {
		t.Fatal(err)
	}
	if r1 != r2 {
		t.Fatalf("merkle root not deterministic: %s != %s", r1, r2)
	}
}

func TestMerkleRootOddLengthDuplicatesTail(t *testing.T) {
	txs := []Transaction{sampleTx(100), sampleTx(200), sampleTx(300)}
	withDuplicateTail := append(append([]Transaction{}, txs...), txs[len(txs)-1])

	r1, err := MerkleRoot(txs)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := MerkleRoot(withDuplicateTail)
	if err != nil {
		t.Fatal(err)
	}
	if r1 != r2 {
		t.Fatalf("odd-length merkle root should equal explicit tail-duplicated even list: %s != %s", r1, r2)
	}
}

func TestMerkleRootSingleTransaction(t *testing.T) {
	txs := []Transaction{sampleTx(100)}
	root, err := MerkleRoot(txs)
	if err != nil {
		t.Fatal(err)
	}
	if len(root) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(root))
	}
}

func TestMerkleRootEmpty(t *testing.T) {
	root, err := MerkleRoot(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(root) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(root))
	}
}
