package txcodec

import "testing"

type sample struct {
	B int    `json:"b"`
	A string `json:"a"`
}

func TestCanonicalJSONFieldOrderIsDeclarationOrder(t *testing.T) {
	data, err := CanonicalJSON(sample{B: 1, A: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"b":1,"a":"x"}` {
		t.Fatalf("got %s, want declaration-order fields", data)
	}
}

func TestHashJSONDeterministic(t *testing.T) {
	h1, err := HashJSON(sample{B: 1, A: "x"})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashJSON(sample{B: 1, A: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestHashJSONSensitiveToContent(t *testing.T) {
	h1, _ := HashJSON(sample{B: 1, A: "x"})
	h2, _ := HashJSON(sample{B: 2, A: "x"})
	if h1 == h2 {
		t.Fatal("expected different hashes for different content")
	}
}
