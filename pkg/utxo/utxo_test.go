package utxo

import (
	"errors"
	"testing"

	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/block"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/cryptocap"
)

type fakeLookup map[string]block.TxOutput

func (f fakeLookup) Output(txid string, vout int) (block.TxOutput, bool) {
	out, ok := f[outpointKey(txid, vout)]
	return out, ok
}

func newFakeLookup() fakeLookup { return fakeLookup{} }

func (f fakeLookup) put(txid string, vout int, out block.TxOutput) {
	f[outpointKey(txid, vout)] = out
}

// P4 fixture: a UTXO with one output of amount=10000 owned by pub.
func p4Fixture(t *testing.T) (priv *cryptocap.Keypair, keyHex string, set *Set, lookup fakeLookup, prevTxID string) {
	t.Helper()
	kp, err := cryptocap.CreateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	keyHex, err = cryptocap.DumpPubkey(kp.Pub)
	if err != nil {
		t.Fatal(err)
	}
	keyhash, err := cryptocap.HashPubkey(kp.Pub)
	if err != nil {
		t.Fatal(err)
	}

	amount := block.Amount(0)
	amount = block.NewAmount(10000)
	out := block.TxOutput{Amount: &amount, Keyhash: keyhash}

	set = NewSet()
	prevTxID = "prevtx"
	set.Add(prevTxID, []int{0}, 0)

	lookup = newFakeLookup()
	lookup.put(prevTxID, 0, out)

	return kp, keyHex, set, lookup, prevTxID
}

func signedInput(t *testing.T, priv *cryptocap.Keypair, keyHex, prevTxID string, vout int, payload string) block.TxInput {
	t.Helper()
	sig, err := cryptocap.Sign(priv.Priv, payload)
	if err != nil {
		t.Fatal(err)
	}
	return block.TxInput{TxID: prevTxID, VOut: vout, Key: keyHex, Signature: sig}
}

func amt(v float64) *block.Amount {
	a := block.NewAmount(v)
	return &a
}

func TestValidateTransactionSuccess(t *testing.T) {
	kp, keyHex, set, lookup, prevTxID := p4Fixture(t)
	in := signedInput(t, kp, keyHex, prevTxID, 0, "10000")
	tx := block.Transaction{
		Version: 1,
		Inputs:  []block.TxInput{in},
		Outputs: []block.TxOutput{
			{Amount: amt(1000), Keyhash: "a"},
			{Amount: amt(8999), Keyhash: "b"},
		},
	}

	fee, err := ValidateTransaction(tx, set, lookup)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if fee != block.NewAmount(1) {
		t.Fatalf("fee = %v, want 1", fee)
	}
}

func TestValidateTransactionUnknownTxID(t *testing.T) {
	kp, keyHex, set, lookup, _ := p4Fixture(t)
	in := signedInput(t, kp, keyHex, "nosuchtx", 0, "10000")
	tx := block.Transaction{Version: 1, Inputs: []block.TxInput{in}, Outputs: []block.TxOutput{{Amount: amt(1), Keyhash: "a"}}}

	if _, err := ValidateTransaction(tx, set, lookup); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction, got %v", err)
	}
}

func TestValidateTransactionVOutAbsent(t *testing.T) {
	kp, keyHex, set, lookup, prevTxID := p4Fixture(t)
	in := signedInput(t, kp, keyHex, prevTxID, 1, "10000")
	tx := block.Transaction{Version: 1, Inputs: []block.TxInput{in}, Outputs: []block.TxOutput{{Amount: amt(1), Keyhash: "a"}}}

	if _, err := ValidateTransaction(tx, set, lookup); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for absent v_out, got %v", err)
	}
}

func TestValidateTransactionDoubleSpendInOneTx(t *testing.T) {
	kp, keyHex, set, lookup, prevTxID := p4Fixture(t)
	in := signedInput(t, kp, keyHex, prevTxID, 0, "10000")
	tx := block.Transaction{
		Version: 1,
		Inputs:  []block.TxInput{in, in},
		Outputs: []block.TxOutput{{Amount: amt(1), Keyhash: "a"}},
	}

	if _, err := ValidateTransaction(tx, set, lookup); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for intra-tx double-spend, got %v", err)
	}
}

func TestValidateTransactionWrongKey(t *testing.T) {
	_, _, set, lookup, prevTxID := p4Fixture(t)
	other, err := cryptocap.CreateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	otherHex, err := cryptocap.DumpPubkey(other.Pub)
	if err != nil {
		t.Fatal(err)
	}
	in := signedInput(t, other, otherHex, prevTxID, 0, "10000")
	tx := block.Transaction{Version: 1, Inputs: []block.TxInput{in}, Outputs: []block.TxOutput{{Amount: amt(1), Keyhash: "a"}}}

	if _, err := ValidateTransaction(tx, set, lookup); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for mismatched key, got %v", err)
	}
}

func TestValidateTransactionWrongSigner(t *testing.T) {
	kp, keyHex, set, lookup, prevTxID := p4Fixture(t)
	other, err := cryptocap.CreateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	in := signedInput(t, other, keyHex, prevTxID, 0, "10000")
	_ = kp
	tx := block.Transaction{Version: 1, Inputs: []block.TxInput{in}, Outputs: []block.TxOutput{{Amount: amt(1), Keyhash: "a"}}}

	if _, err := ValidateTransaction(tx, set, lookup); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for signature by wrong priv, got %v", err)
	}
}

func TestValidateTransactionWrongAmountSigned(t *testing.T) {
	kp, keyHex, set, lookup, prevTxID := p4Fixture(t)
	in := signedInput(t, kp, keyHex, prevTxID, 0, "9999")
	tx := block.Transaction{Version: 1, Inputs: []block.TxInput{in}, Outputs: []block.TxOutput{{Amount: amt(1), Keyhash: "a"}}}

	if _, err := ValidateTransaction(tx, set, lookup); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for signature over wrong payload, got %v", err)
	}
}

func TestValidateTransactionOutputsExceedInputs(t *testing.T) {
	kp, keyHex, set, lookup, prevTxID := p4Fixture(t)
	in := signedInput(t, kp, keyHex, prevTxID, 0, "10000")
	tx := block.Transaction{
		Version: 1,
		Inputs:  []block.TxInput{in},
		Outputs: []block.TxOutput{{Amount: amt(20000), Keyhash: "a"}},
	}

	if _, err := ValidateTransaction(tx, set, lookup); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for overspend, got %v", err)
	}
}

func TestValidateTransactionDataLostIsRejected(t *testing.T) {
	kp, err := cryptocap.CreateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	keyHex, err := cryptocap.DumpPubkey(kp.Pub)
	if err != nil {
		t.Fatal(err)
	}
	keyhash, err := cryptocap.HashPubkey(kp.Pub)
	if err != nil {
		t.Fatal(err)
	}

	data := "hello"
	out := block.TxOutput{Data: &data, Keyhash: keyhash}
	set := NewSet()
	set.Add("prevtx", []int{0}, 0)
	lookup := newFakeLookup()
	lookup.put("prevtx", 0, out)

	in := signedInput(t, kp, keyHex, "prevtx", 0, "hello")
	tx := block.Transaction{Version: 1, Inputs: []block.TxInput{in}, Outputs: []block.TxOutput{{Amount: amt(0), Keyhash: "a"}}}

	if _, err := ValidateTransaction(tx, set, lookup); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for lost data, got %v", err)
	}
}

func TestValidateTransactionDataPreservedSucceeds(t *testing.T) {
	kp, err := cryptocap.CreateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	keyHex, err := cryptocap.DumpPubkey(kp.Pub)
	if err != nil {
		t.Fatal(err)
	}
	keyhash, err := cryptocap.HashPubkey(kp.Pub)
	if err != nil {
		t.Fatal(err)
	}

	data := "hello"
	out := block.TxOutput{Data: &data, Keyhash: keyhash}
	set := NewSet()
	set.Add("prevtx", []int{0}, 0)
	lookup := newFakeLookup()
	lookup.put("prevtx", 0, out)

	in := signedInput(t, kp, keyHex, "prevtx", 0, "hello")
	split1, split2 := "hel", "lo"
	tx := block.Transaction{
		Version: 1,
		Inputs:  []block.TxInput{in},
		Outputs: []block.TxOutput{
			{Data: &split1, Keyhash: "a"},
			{Data: &split2, Keyhash: "b"},
			{Data: &data, Keyhash: "c"},
		},
	}

	fee, err := ValidateTransaction(tx, set, lookup)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if fee != 0 {
		t.Fatalf("fee = %v, want 0", fee)
	}
}

func TestSetSpendRemovesEmptyEntry(t *testing.T) {
	s := NewSet()
	s.Add("tx", []int{0, 1}, 0)
	s.Spend("tx", 0)
	if !s.Has("tx", 1) {
		t.Fatal("expected remaining v_out to still be present")
	}
	s.Spend("tx", 1)
	if _, ok := s.Get("tx"); ok {
		t.Fatal("expected entry to be deleted once all v_outs are spent")
	}
}

func TestValidateTransactionRejectsWrongVersion(t *testing.T) {
	kp, keyHex, set, lookup, prevTxID := p4Fixture(t)
	in := signedInput(t, kp, keyHex, prevTxID, 0, "10000")
	tx := block.Transaction{Version: 2, Inputs: []block.TxInput{in}, Outputs: []block.TxOutput{{Amount: amt(1), Keyhash: "a"}}}

	if _, err := ValidateTransaction(tx, set, lookup); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for bad version, got %v", err)
	}
}
