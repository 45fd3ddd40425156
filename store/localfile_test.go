package store_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/geds-project/geds/store"
)

var _ = Describe("LocalFile", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "geds-localfile-")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("returns 0 bytes, no error, reading at or past size", func() {
		lf, err := store.OpenLocalFile(filepath.Join(dir, "f"))
		Expect(err).NotTo(HaveOccurred())
		defer lf.Close()

		buf := make([]byte, 16)
		n, err := lf.ReadBytes(buf, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	It("round-trips a write followed by a fully-overlapping read", func() {
		lf, err := store.OpenLocalFile(filepath.Join(dir, "f"))
		Expect(err).NotTo(HaveOccurred())
		defer lf.Close()

		payload := []byte("hello, geds")
		n, err := lf.WriteBytes(payload, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(len(payload)))
		Expect(lf.Size()).To(Equal(int64(10 + len(payload))))

		out := make([]byte, len(payload))
		n, err = lf.ReadBytes(out, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(len(payload)))
		Expect(out).To(Equal(payload))
	})

	It("zero-fills the gap when writing past the current end", func() {
		lf, err := store.OpenLocalFile(filepath.Join(dir, "f"))
		Expect(err).NotTo(HaveOccurred())
		defer lf.Close()

		_, err = lf.WriteBytes([]byte("x"), 5)
		Expect(err).NotTo(HaveOccurred())

		gap := make([]byte, 5)
		n, err := lf.ReadBytes(gap, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(5))
		for _, b := range gap {
			Expect(b).To(Equal(byte(0)))
		}
	})

	It("zero-length read/write are no-ops", func() {
		lf, err := store.OpenLocalFile(filepath.Join(dir, "f"))
		Expect(err).NotTo(HaveOccurred())
		defer lf.Close()

		n, err := lf.WriteBytes(nil, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))

		n, err = lf.ReadBytes(nil, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	It("rejects writes after Seal", func() {
		lf, err := store.OpenLocalFile(filepath.Join(dir, "f"))
		Expect(err).NotTo(HaveOccurred())
		defer lf.Close()

		_, err = lf.WriteBytes([]byte("x"), 0)
		Expect(err).NotTo(HaveOccurred())

		lf.Seal()

		_, err = lf.WriteBytes([]byte("y"), 0)
		Expect(err).To(HaveOccurred())
	})

	It("Truncate is idempotent and updates both fs and tracked size", func() {
		lf, err := store.OpenLocalFile(filepath.Join(dir, "f"))
		Expect(err).NotTo(HaveOccurred())
		defer lf.Close()

		Expect(lf.Truncate(100)).To(Succeed())
		Expect(lf.Size()).To(Equal(int64(100)))
		Expect(lf.Truncate(100)).To(Succeed())
		Expect(lf.Size()).To(Equal(int64(100)))
	})
})
