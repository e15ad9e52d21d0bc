package seal_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trendsift/viral-engine/pkg/seal"
)

var _ = Describe("EncryptAES and DecryptAES", func() {
	It("round-trips a plain text", func() {
		cipherText, err := seal.EncryptAES("hello world", "passphrase")
		Expect(err).NotTo(HaveOccurred())
		Expect(cipherText).NotTo(Equal("hello world"))

		plainText, err := seal.DecryptAES(cipherText, "passphrase")
		Expect(err).NotTo(HaveOccurred())
		Expect(plainText).To(Equal("hello world"))
	})

	It("accepts passphrases of any length", func() {
		cipherText, err := seal.EncryptAES("data", "k")
		Expect(err).NotTo(HaveOccurred())

		plainText, err := seal.DecryptAES(cipherText, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(plainText).To(Equal("data"))
	})

	It("fails to decrypt with the wrong key", func() {
		cipherText, err := seal.EncryptAES("secret", "right-key")
		Expect(err).NotTo(HaveOccurred())

		_, err = seal.DecryptAES(cipherText, "wrong-key")
		Expect(err).To(HaveOccurred())
	})

	It("fails to decrypt tampered data", func() {
		_, err := seal.DecryptAES("bm90IHJlYWwgY2lwaGVyIHRleHQ=", "key")
		Expect(err).To(HaveOccurred())
	})

	It("rejects cipher text that is not base64", func() {
		_, err := seal.DecryptAES("%%%not-base64%%%", "key")
		Expect(err).To(HaveOccurred())
	})

	It("produces a fresh nonce per encryption", func() {
		first, err := seal.EncryptAES("same input", "key")
		Expect(err).NotTo(HaveOccurred())
		second, err := seal.EncryptAES("same input", "key")
		Expect(err).NotTo(HaveOccurred())
		Expect(first).NotTo(Equal(second))
	})
})

var _ = Describe("KeyRing", func() {
	Context("when creating a new key ring", func() {
		It("creates an empty ring", func() {
			kr := seal.NewKeyRing()
			Expect(kr.Keys).To(BeEmpty())
			Expect(kr.MostRecentKey()).To(BeEmpty())
		})

		It("keeps the first given key as most recent", func() {
			kr := seal.NewKeyRing("newest", "older", "oldest")
			Expect(kr.MostRecentKey()).To(Equal("newest"))
			Expect(kr.Keys).To(HaveLen(3))
		})
	})

	Context("when adding keys", func() {
		It("places the new key at the front", func() {
			kr := seal.NewKeyRing("first")
			Expect(kr.Add("second")).To(BeTrue())
			Expect(kr.MostRecentKey()).To(Equal("second"))
		})

		It("does not add duplicates", func() {
			kr := seal.NewKeyRing("only")
			Expect(kr.Add("only")).To(BeFalse())
			Expect(kr.Keys).To(HaveLen(1))
		})

		It("drops the oldest key beyond capacity", func() {
			kr := seal.NewKeyRing()
			kr.Add("k1")
			kr.Add("k2")
			kr.Add("k3")
			kr.Add("k4")
			Expect(kr.Keys).To(HaveLen(seal.MaxKeysInRing))
			Expect(kr.MostRecentKey()).To(Equal("k4"))
			for _, entry := range kr.Keys {
				Expect(entry.Key).NotTo(Equal("k1"))
			}
		})
	})

	Context("when sealing and unsealing", func() {
		It("seals with the most recent key", func() {
			kr := seal.NewKeyRing("current")
			cipherText, err := kr.Seal("payload")
			Expect(err).NotTo(HaveOccurred())

			plainText, err := seal.DecryptAES(cipherText, "current")
			Expect(err).NotTo(HaveOccurred())
			Expect(plainText).To(Equal("payload"))
		})

		It("unseals data sealed with an older key after rotation", func() {
			kr := seal.NewKeyRing("old-key")
			cipherText, err := kr.Seal("survives rotation")
			Expect(err).NotTo(HaveOccurred())

			kr.Add("new-key")
			Expect(kr.MostRecentKey()).To(Equal("new-key"))

			plainText, err := kr.Unseal(cipherText)
			Expect(err).NotTo(HaveOccurred())
			Expect(plainText).To(Equal("survives rotation"))
		})

		It("fails when no key in the ring matches", func() {
			other := seal.NewKeyRing("somebody-else")
			cipherText, err := other.Seal("private")
			Expect(err).NotTo(HaveOccurred())

			kr := seal.NewKeyRing("mine")
			_, err = kr.Unseal(cipherText)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("no key in the ring"))
		})

		It("errors on an empty ring", func() {
			kr := seal.NewKeyRing()
			_, err := kr.Seal("anything")
			Expect(err).To(HaveOccurred())
			_, err = kr.Unseal("anything")
			Expect(err).To(HaveOccurred())
		})
	})
})
