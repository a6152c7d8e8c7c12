package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RuleKind selects what a Rule's Target is matched against.
type RuleKind string

const (
	KindCategory RuleKind = "category" // Target is a product category name
	KindCustomer RuleKind = "customer" // Target is a customer group name
	KindVolume   RuleKind = "volume"   // Target is a numeric subtotal threshold
)

// Kinds lists every supported rule kind.
var Kinds = []RuleKind{KindCategory, KindCustomer, KindVolume}

// Valid reports whether k is a known rule kind.
func (k RuleKind) Valid() bool {
	switch k {
	case KindCategory, KindCustomer, KindVolume:
		return true
	}
	return false
}

// Rule is a percentage discount from an organization's catalog.
type Rule struct {
	ID      string          `json:"id"`
	Kind    RuleKind        `json:"kind"`
	Target  string          `json:"target"`
	Percent decimal.Decimal `json:"percent"`
}

// VolumeThreshold parses a volume rule target. A target that is not a
// number yields a zero threshold, which makes the rule apply to every
// non-negative subtotal.
func VolumeThreshold(target string) decimal.Decimal {
	threshold, err := decimal.NewFromString(strings.TrimSpace(target))
	if err != nil {
		return decimal.Zero
	}
	return threshold
}
