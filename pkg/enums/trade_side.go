package enums

import (
	"fmt"
	"strings"
)

// TradeSide narrows a listing to the records where the caller sold, bought,
// or either.
type TradeSide string

const (
	TradeSideAll    TradeSide = "all"
	TradeSideSeller TradeSide = "seller"
	TradeSideBuyer  TradeSide = "buyer"
)

// String implements fmt.Stringer.
func (s TradeSide) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TradeSide.
func (s TradeSide) IsValid() bool {
	switch s {
	case TradeSideAll, TradeSideSeller, TradeSideBuyer:
		return true
	}
	return false
}

// ParseTradeSide converts raw input into a TradeSide. Blank input means all.
func ParseTradeSide(value string) (TradeSide, error) {
	clean := strings.ToLower(strings.TrimSpace(value))
	if clean == "" {
		return TradeSideAll, nil
	}
	side := TradeSide(clean)
	if !side.IsValid() {
		return "", fmt.Errorf("invalid trade side %q", value)
	}
	return side, nil
}
