// Package difficulty implements the adaptive difficulty formula and
// compact target encoding of §4.6, grounded on the teacher's
// pkg/consensus/consensus.go calculateTarget/hashLessThan idiom (a
// big-endian numeric-threshold compare) re-expressed over the spec's
// 8-hex compact form instead of a raw big.Int difficulty.
package difficulty

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
)

// BaseDifficulty is the floor difficulty with zero connected nodes.
const BaseDifficulty = 2

// Mantissa is the fixed three-byte mantissa every compact target uses;
// only the exponent byte varies with the live node count.
const Mantissa = "ffffff"

// Compute returns d = base + floor(log4(nodeCount+1)), the formula
// confirmed letter-for-letter against original_source/zhijie/master.py's
// update_difficulty and spec §4.6/§8 P6/E5.
func Compute(nodeCount int) int {
	return BaseDifficulty + int(math.Floor(math.Log(float64(nodeCount+1))/math.Log(4)))
}

// Encode renders difficulty d as the 8-hex compact target: exponent byte
// e = 32-d (lowercase, zero-padded to two digits) followed by the fixed
// mantissa ffffff.
func Encode(d int) string {
	e := 32 - d
	return fmt.Sprintf("%02x%s", e, Mantissa)
}

// ForNodeCount is the convenience composition Compute+Encode, the value
// the coordinator broadcasts in a mine/verify message.
func ForNodeCount(nodeCount int) string {
	return Encode(Compute(nodeCount))
}

// TargetValue parses an 8-hex compact target into its numeric threshold:
// mantissa * 256^(exponent-3), where the first two hex characters are the
// exponent and the remaining six are the mantissa.
func TargetValue(target string) (*big.Int, error) {
	if len(target) != 8 {
		return nil, fmt.Errorf("target %q must be 8 hex characters", target)
	}
	expBytes, err := hex.DecodeString(target[:2])
	if err != nil {
		return nil, fmt.Errorf("decoding target exponent: %w", err)
	}
	mantissa, ok := new(big.Int).SetString(target[2:], 16)
	if !ok {
		return nil, fmt.Errorf("decoding target mantissa %q", target[2:])
	}

	exponent := int(expBytes[0])
	shift := (exponent - 3) * 8
	value := new(big.Int).Set(mantissa)
	if shift >= 0 {
		value.Lsh(value, uint(shift))
	} else {
		value.Rsh(value, uint(-shift))
	}
	return value, nil
}

// HashMeetsTarget reports whether hashHex's numeric value is at most the
// target's numeric threshold — §3 invariant 4's block_hash <= target_value.
func HashMeetsTarget(hashHex, target string) (bool, error) {
	hashValue, ok := new(big.Int).SetString(hashHex, 16)
	if !ok {
		return false, fmt.Errorf("decoding hash %q", hashHex)
	}
	targetValue, err := TargetValue(target)
	if err != nil {
		return false, err
	}
	return hashValue.Cmp(targetValue) <= 0, nil
}
