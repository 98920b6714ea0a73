// Package bic implements the "built-in contracts" of spec.md §4.1/§4.10:
// Coin, Epoch, and Contract — the three dispatch targets a tx's action can
// name directly (as opposed to sandboxed user bytecode, see package vm).
package bic

import "strings"

const (
	Decimals     = 9
	EpochInterval = 100_000 // heights per epoch

	emissionParamA     = 23_072_960_000.0
	emissionParamC      = 1110.573766
	emissionStartEpoch = 500
	baseEmissionPerEpoch = 1_000_000
	emissionFixedEpochs  = 100_000
)

// ToFlat converts a whole-coin amount to flat units (9 decimals).
func ToFlat(n int64) int64 { return n * 1_000_000_000 }

// ToCents converts an amount in cents (hundredths of a coin) to flat units,
// 1 cent = 10^7 flat units, used by the txpool's fee reservation and the gas-to-AMA conversion.
func ToCents(n int64) int64 { return n * 10_000_000 }

// reservedTickers is the fixed ticker set §4.10 reserves for
// owner-locked symbols, independent of the "AMA"-prefix rule.
var reservedTickers = map[string]bool{
	"BTC": true, "ETH": true, "USDT": true, "USDC": true, "SOL": true,
	"BNB": true, "XRP": true, "DOGE": true, "TRX": true, "TON": true,
}

// IsReservedSymbol reports whether symbol is owner-locked: either in the
// fixed ticker set, or prefixed with "AMA" (reserved system-wide).
func IsReservedSymbol(symbol []byte) bool {
	s := strings.ToUpper(string(symbol))
	if strings.HasPrefix(s, "AMA") {
		return true
	}
	return reservedTickers[s]
}

// EmissionForEpoch returns the total AMA (in flat units) emitted at the
// given epoch, per §4.10's fixed-then-curve schedule: epochs before
// emissionStartEpoch get the flat baseEmissionPerEpoch; from
// emissionStartEpoch on, emission follows a tapering curve parameterized
// by A and C, so per-epoch emission decreases epoch by epoch.
func EmissionForEpoch(epoch uint64) int64 {
	if epoch < emissionStartEpoch {
		return ToFlat(baseEmissionPerEpoch)
	}
	n := float64(epoch - emissionStartEpoch + 1)
	// Harmonic-style taper: emission(n) = A / (C + n), floored at 0.
	coins := emissionParamA / (emissionParamC + n)
	if coins < 0 {
		coins = 0
	}
	return int64(coins * 1_000_000_000)
}
