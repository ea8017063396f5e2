package block

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TxMap is an insertion-ordered mapping from txid to Transaction. Insertion
// order is significant: it is the order Merkle roots are built over and it
// is preserved across serialize/deserialize (spec §3's "two flavors of
// Transaction container" Design Note resolves to exactly this structure).
type TxMap struct {
	order []string
	items map[string]Transaction
}

// NewTxMap returns an empty ordered transaction map.
func NewTxMap() *TxMap {
	return &TxMap{items: make(map[string]Transaction)}
}

// Put inserts or replaces a transaction, appending a new key to the
// insertion order only the first time it is seen.
func (m *TxMap) Put(txid string, tx Transaction) {
	if _, ok := m.items[txid]; !ok {
		m.order = append(m.order, txid)
	}
	m.items[txid] = tx
}

// Delete removes a txid from the map, preserving the relative order of
// everything else.
func (m *TxMap) Delete(txid string) {
	if _, ok := m.items[txid]; !ok {
		return
	}
	delete(m.items, txid)
	for i, k := range m.order {
		if k == txid {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Get returns the transaction for a txid and whether it was present.
func (m *TxMap) Get(txid string) (Transaction, bool) {
	tx, ok := m.items[txid]
	return tx, ok
}

// Len returns the number of transactions.
func (m *TxMap) Len() int { return len(m.order) }

// Keys returns the txids in insertion order.
func (m *TxMap) Keys() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Transactions returns the transactions in insertion order.
func (m *TxMap) Transactions() []Transaction {
	out := make([]Transaction, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.items[k])
	}
	return out
}

// MarshalJSON writes the map as a JSON object whose key order matches
// insertion order — Go's map type cannot make this guarantee on its own,
// so TxMap carries its own order slice instead of being backed by a plain map.
func (m *TxMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(m.items[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object preserving the order its keys appear in
// the source document, by decoding key/value pairs off a token stream
// instead of through Go's (unordered) map support.
func (m *TxMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decoding transactions object: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("transactions must be a JSON object")
	}

	m.order = nil
	m.items = make(map[string]Transaction)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decoding transaction key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("transaction key must be a string")
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decoding transaction %s: %w", key, err)
		}
		var tx Transaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return fmt.Errorf("decoding transaction %s: %w", key, err)
		}
		m.Put(key, tx)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decoding transactions object close: %w", err)
	}
	return nil
}
