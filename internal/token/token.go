// Package token describes the payment methods a booking can be priced in
// and converts between human-decimal amounts and their fixed-point
// on-chain representation.
//
// The native coin is modelled as a method whose address is the zero
// address. All other methods are ERC-20 tokens with a per-token decimal
// count (USDC uses 6, most others 18).
package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownMethod = errors.New("token: unknown payment method")
	ErrInvalidAmount = errors.New("token: invalid amount")
)

// Method is one supported payment method. Immutable.
type Method struct {
	Symbol   string         `json:"symbol"`
	Address  common.Address `json:"address"`
	Decimals int            `json:"decimals"`
}

// IsNative reports whether the method is the chain's native coin.
func (m Method) IsNative() bool {
	return m.Address == (common.Address{})
}

// The supported set is fixed at compile time. Addresses are the
// Base Sepolia deployments.
var supported = []Method{
	{Symbol: "ETH", Address: common.Address{}, Decimals: 18},
	{Symbol: "USDC", Address: common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"), Decimals: 6},
	{Symbol: "DAI", Address: common.HexToAddress("0x7683022d84F726a96c4A6611cD31DBf5409c0Ac9"), Decimals: 18},
}

// Supported returns the fixed set of payment methods.
func Supported() []Method {
	out := make([]Method, len(supported))
	copy(out, supported)
	return out
}

// BySymbol looks up a payment method by its symbol (case-insensitive).
func BySymbol(symbol string) (Method, error) {
	for _, m := range supported {
		if strings.EqualFold(m.Symbol, symbol) {
			return m, nil
		}
	}
	return Method{}, fmt.Errorf("%w: %q", ErrUnknownMethod, symbol)
}

// Parse converts a decimal string (e.g. "1.50") to its smallest-unit
// big.Int representation in the given precision (1500000 for 6 decimals).
//
// Rules:
//   - Empty strings and negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded or truncated to the method's precision
func Parse(s string, decimals int) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	// Pad or trim the fraction to the method's precision.
	for len(frac) < decimals {
		frac += "0"
	}
	frac = frac[:decimals]

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return result, nil
}

// Format converts a smallest-unit big.Int back to a decimal string
// with exactly the method's number of decimal places.
func Format(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0." + strings.Repeat("0", decimals)
	}
	neg := amount.Sign() < 0
	s := new(big.Int).Abs(amount).String()
	for len(s) < decimals+1 {
		s = "0" + s
	}
	point := len(s) - decimals
	result := s[:point]
	if decimals > 0 {
		result += "." + s[point:]
	}
	if neg {
		result = "-" + result
	}
	return result
}

// MustParse is Parse for compile-time-known amounts; panics on error.
// Intended for tests and defaults only.
func MustParse(s string, decimals int) *big.Int {
	v, err := Parse(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}
