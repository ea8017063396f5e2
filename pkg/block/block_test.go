package block

import (
	"encoding/json"
	"testing"
)

func sampleTx(amount int64) Transaction {
	a := Amount(amount)
	return Transaction{
		Version: 1,
		Outputs: []TxOutput{{Amount: &a, Keyhash: "deadbeef"}},
	}
}

func TestHeaderRepr(t *testing.T) {
	h := Header{
		Version:    1,
		HashParent: GenesisHash,
		HashMerkle: "aa",
		Time:       1700000000,
		Target:     "1effffff",
		Nonce:      42,
	}
	want := "1" + GenesisHash + "aa" + "1700000000" + "1effffff" + "42"
	if got := h.Repr(); got != want {
		t.Fatalf("Repr() = %q, want %q", got, want)
	}
}

// P2: mutating nonce changes block_hash; restoring it restores the hash.
func TestBlockHashNonceSensitivity(t *testing.T) {
	b := NewBlock(GenesisHash, "1effffff", 1700000000)
	if err := b.RefreshMerkleRoot(); err != nil {
		t.Fatal(err)
	}
	original := b.Hash()

	b.Header.Nonce = 1
	if b.Hash() == original {
		t.Fatal("expected hash to change after nonce mutation")
	}

	b.Header.Nonce = 0
	if b.Hash() != original {
		t.Fatal("expected hash to be restored with original nonce")
	}
}

// P3: loads(dumps(block)) yields equal header and equal ordered transactions.
func TestBlockRoundTrip(t *testing.T) {
	b := NewBlock(GenesisHash, "1effffff", 1700000000)
	tx1 := sampleTx(1000)
	tx2 := sampleTx(2000)
	id1, err := TxID(tx1)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := TxID(tx2)
	if err != nil {
		t.Fatal(err)
	}
	b.Transactions.Put(id1, tx1)
	b.Transactions.Put(id2, tx2)
	if err := b.RefreshMerkleRoot(); err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}

	var got Block
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}

	if got.Header != b.Header {
		t.Fatalf("header mismatch: got %+v, want %+v", got.Header, b.Header)
	}
	if got.Transactions.Keys()[0] != id1 || got.Transactions.Keys()[1] != id2 {
		t.Fatalf("transaction order mismatch: got %v", got.Transactions.Keys())
	}
	if got.Hash() != b.Hash() {
		t.Fatalf("hash mismatch after round-trip: got %s, want %s", got.Hash(), b.Hash())
	}
}

func TestTxOutputPayload(t *testing.T) {
	amt := Amount(1000)
	out := TxOutput{Amount: &amt, Keyhash: "x"}
	payload, err := out.Payload()
	if err != nil {
		t.Fatal(err)
	}
	if payload != "1" {
		t.Fatalf("amount payload = %q, want %q", payload, "1")
	}

	data := "hello"
	out2 := TxOutput{Data: &data, Keyhash: "x"}
	payload2, err := out2.Payload()
	if err != nil {
		t.Fatal(err)
	}
	if payload2 != "hello" {
		t.Fatalf("data payload = %q, want %q", payload2, "hello")
	}

	var empty TxOutput
	if _, err := empty.Payload(); err == nil {
		t.Fatal("expected error for output with neither amount nor data")
	}
}

func TestNewCoinbase(t *testing.T) {
	total := NewAmount(3.125)
	tx := NewCoinbase("minerhash", total)
	if !tx.Coinbase {
		t.Fatal("expected coinbase flag set")
	}
	if len(tx.Outputs) != 1 {
		t.Fatalf("expected exactly one coinbase output, got %d", len(tx.Outputs))
	}
	if tx.Outputs[0].Amount == nil || *tx.Outputs[0].Amount != total {
		t.Fatalf("coinbase amount mismatch: got %+v, want %v", tx.Outputs[0].Amount, total)
	}
}

func TestEmptyBlockUnmarshal(t *testing.T) {
	b := NewBlock(GenesisHash, "1effffff", 0)
	if err := b.RefreshMerkleRoot(); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	var got Block
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Transactions.Len() != 0 {
		t.Fatalf("expected zero transactions, got %d", got.Transactions.Len())
	}
}
