package auth_test

import (
	"stakevault/internal/auth"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Password hashing", func() {
	It("round-trips the correct password", func() {
		hash, err := auth.HashPassword("S3cure!pass")
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).To(HavePrefix("$argon2id$"))

		ok, err := auth.VerifyPassword(hash, "S3cure!pass")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("rejects the wrong password", func() {
		hash, err := auth.HashPassword("S3cure!pass")
		Expect(err).NotTo(HaveOccurred())

		ok, err := auth.VerifyPassword(hash, "S3cure!pass2")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("produces distinct hashes for the same password", func() {
		first, err := auth.HashPassword("S3cure!pass")
		Expect(err).NotTo(HaveOccurred())
		second, err := auth.HashPassword("S3cure!pass")
		Expect(err).NotTo(HaveOccurred())
		Expect(first).NotTo(Equal(second))
	})

	It("flags malformed stored hashes", func() {
		_, err := auth.VerifyPassword("not-a-phc-string", "whatever")
		Expect(err).To(MatchError(auth.ErrHashMalformed))
	})
})
