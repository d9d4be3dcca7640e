package cipher_test

import (
	"stakevault/pkg/cipher"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Sealer", func() {
	var sealer *cipher.Sealer

	BeforeEach(func() {
		var err error
		sealer, err = cipher.NewSealer([]byte("master-key"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("round-trips a secret", func() {
		sealed, err := sealer.Seal([]byte("JBSWY3DPEHPK3PXP"))
		Expect(err).NotTo(HaveOccurred())
		Expect(sealed).NotTo(ContainSubstring("JBSWY3DP"))

		opened, err := sealer.Open(sealed)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(opened)).To(Equal("JBSWY3DPEHPK3PXP"))
	})

	It("produces distinct ciphertexts for the same plaintext", func() {
		first, err := sealer.Seal([]byte("secret"))
		Expect(err).NotTo(HaveOccurred())
		second, err := sealer.Seal([]byte("secret"))
		Expect(err).NotTo(HaveOccurred())
		Expect(first).NotTo(Equal(second))
	})

	It("refuses ciphertext sealed under another master key", func() {
		other, err := cipher.NewSealer([]byte("other-key"))
		Expect(err).NotTo(HaveOccurred())

		sealed, err := other.Seal([]byte("secret"))
		Expect(err).NotTo(HaveOccurred())

		_, err = sealer.Open(sealed)
		Expect(err).To(HaveOccurred())
	})

	It("refuses truncated ciphertext", func() {
		_, err := sealer.Open("AAAA")
		Expect(err).To(MatchError(cipher.ErrCiphertextTooShort))
	})

	It("refuses an empty master key", func() {
		_, err := cipher.NewSealer(nil)
		Expect(err).To(HaveOccurred())
	})
})
