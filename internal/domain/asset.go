package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Asset symbols used on the Steem chain.
const (
	SymbolSTEEM = "STEEM"
	SymbolSBD   = "SBD"
)

// assetPrecision is the number of decimals for liquid Steem assets.
const assetPrecision = 3

// Asset is an amount of a ledger token, e.g. "0.001 STEEM".
type Asset struct {
	Amount decimal.Decimal
	Symbol string
}

// ParseAsset parses the "<amount> <SYMBOL>" form used by the ledger API.
func ParseAsset(s string) (Asset, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return Asset{}, fmt.Errorf("invalid asset %q", s)
	}
	amount, err := decimal.NewFromString(parts[0])
	if err != nil {
		return Asset{}, fmt.Errorf("invalid asset amount %q: %w", parts[0], err)
	}
	if amount.IsNegative() {
		return Asset{}, fmt.Errorf("negative asset amount %q", parts[0])
	}
	return Asset{Amount: amount, Symbol: parts[1]}, nil
}

// MustParseAsset is ParseAsset for constants and tests.
func MustParseAsset(s string) Asset {
	a, err := ParseAsset(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Precision returns the number of decimals the ledger uses for this symbol.
func (a Asset) Precision() uint8 {
	return assetPrecision
}

// Satoshis returns the amount as an integer count of the smallest unit.
func (a Asset) Satoshis() int64 {
	return a.Amount.Shift(int32(a.Precision())).IntPart()
}

// String formats the asset with fixed precision, e.g. "0.001 STEEM".
func (a Asset) String() string {
	return a.Amount.StringFixed(int32(a.Precision())) + " " + a.Symbol
}

// Equal reports whether both amount and symbol match.
func (a Asset) Equal(b Asset) bool {
	return a.Symbol == b.Symbol && a.Amount.Equal(b.Amount)
}
