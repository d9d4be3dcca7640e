package ledger_test

import (
	. "github.com/onsi/gomega"
	gomegatypes "github.com/onsi/gomega/types"
	"github.com/shopspring/decimal"
)

// eqDec matches decimals by value, not representation.
func eqDec(expected string) gomegatypes.GomegaMatcher {
	want := decimal.RequireFromString(expected)
	return WithTransform(func(actual decimal.Decimal) bool {
		return actual.Equal(want)
	}, BeTrue())
}
