package repository_test

import (
	"stakevault/internal/repository"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("RoleAtLeast", func() {
	DescribeTable("orders roles USER < SUPPORT < ADMIN < SUPER_ADMIN",
		func(role, minimum string, expected bool) {
			Expect(repository.RoleAtLeast(role, minimum)).To(Equal(expected))
		},
		Entry("user meets user", repository.RoleUser, repository.RoleUser, true),
		Entry("user below support", repository.RoleUser, repository.RoleSupport, false),
		Entry("support meets user", repository.RoleSupport, repository.RoleUser, true),
		Entry("admin meets admin", repository.RoleAdmin, repository.RoleAdmin, true),
		Entry("admin below super admin", repository.RoleAdmin, repository.RoleSuperAdmin, false),
		Entry("super admin meets everything", repository.RoleSuperAdmin, repository.RoleUser, true),
		Entry("unknown role meets nothing", "BOGUS", repository.RoleUser, false),
	)
})

var _ = Describe("SumWithdrawalsUsd", func() {
	It("folds amount times price over the requests", func() {
		items := []repository.WithdrawalRequest{
			{Amount: decimal.RequireFromString("1.5")},
			{Amount: decimal.RequireFromString("0.5")},
		}

		total := repository.SumWithdrawalsUsd(items, decimal.RequireFromString("3000"))
		Expect(total).To(eqDec("6000"))
	})

	It("is zero for no requests", func() {
		Expect(repository.SumWithdrawalsUsd(nil, decimal.RequireFromString("1")).IsZero()).To(BeTrue())
	})
})

var _ = Describe("Models", func() {
	It("lists every table exactly once", func() {
		models := repository.Models()
		Expect(models).To(HaveLen(20))

		seen := map[any]bool{}
		for _, model := range models {
			Expect(seen[model]).To(BeFalse())
			seen[model] = true
		}
	})
})
