package difficulty

import "testing"

// P6 / E5: difficulty is monotone and matches the literal table the spec
// names for {0,3,15,63,255} nodes.
func TestComputeMonotoneTable(t *testing.T) {
	cases := []struct {
		nodes int
		want  int
	}{
		{0, 2},
		{3, 3},
		{15, 4},
		{63, 5},
		{255, 6},
	}
	prevTarget, err := TargetValue(Encode(BaseDifficulty))
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cases {
		got := Compute(c.nodes)
		if got != c.want {
			t.Fatalf("Compute(%d) = %d, want %d", c.nodes, got, c.want)
		}
		target, err := TargetValue(Encode(got))
		if err != nil {
			t.Fatal(err)
		}
		if c.nodes > 0 && target.Cmp(prevTarget) > 0 {
			t.Fatalf("expected target to shrink monotonically as nodes increase, got %s > %s", target, prevTarget)
		}
		prevTarget = target
	}
}

func TestEncodeMatchesE5Literals(t *testing.T) {
	cases := []struct {
		nodes int
		want  string
	}{
		{15, "1cffffff"},
		{3, "1dffffff"},
		{0, "1effffff"},
	}
	for _, c := range cases {
		if got := ForNodeCount(c.nodes); got != c.want {
			t.Fatalf("ForNodeCount(%d) = %q, want %q", c.nodes, got, c.want)
		}
	}
}

func TestTargetValueParsesCompactForm(t *testing.T) {
	// exponent 0x1e = 30, mantissa 0xffffff -> 0xffffff * 256^(30-3)
	v, err := TargetValue("1effffff")
	if err != nil {
		t.Fatal(err)
	}
	if v.Sign() <= 0 {
		t.Fatal("expected a positive target value")
	}
}

func TestHashMeetsTarget(t *testing.T) {
	easy := "1effffff"
	ok, err := HashMeetsTarget("0000000000000000000000000000000000000000000000000000000000000001", easy)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a near-zero hash to meet an easy target")
	}

	ok, err = HashMeetsTarget("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff", easy)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected a maximal hash to miss the target")
	}
}

func TestTargetValueRejectsBadLength(t *testing.T) {
	if _, err := TargetValue("ff"); err == nil {
		t.Fatal("expected error for short target")
	}
}
