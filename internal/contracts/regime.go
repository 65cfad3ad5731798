package contracts

import (
	"fmt"
	"time"
)

// RegimeLabel is the coarse market trend classification
type RegimeLabel string

const (
	RegimeBull     RegimeLabel = "BULL"
	RegimeBear     RegimeLabel = "BEAR"
	RegimeSideways RegimeLabel = "SIDEWAYS"
)

// ParseRegimeLabel parses a closed-set regime label
func ParseRegimeLabel(s string) (RegimeLabel, error) {
	switch RegimeLabel(s) {
	case RegimeBull, RegimeBear, RegimeSideways:
		return RegimeLabel(s), nil
	default:
		return "", fmt.Errorf("unknown regime %q", s)
	}
}

// RegimeState is an immutable regime classification. Replace whole, never mutate.
type RegimeState struct {
	Label          RegimeLabel `json:"label"`
	TrailingReturn float64     `json:"trailing_return"`
	AsOf           time.Time   `json:"as_of"`
	Bars           int         `json:"bars"`
	Insufficient   bool        `json:"insufficient"` // 데이터 부족으로 SIDEWAYS 기본값
}
