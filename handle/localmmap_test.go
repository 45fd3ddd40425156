package handle_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/geds-project/geds/handle"
	"github.com/geds-project/geds/objectid"
)

var _ = Describe("LocalMmap", func() {
	var (
		dir  string
		path string
		id   objectid.ID
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "geds-localmmap-")
		Expect(err).NotTo(HaveOccurred())
		path = filepath.Join(dir, "obj")
		id = objectid.ID{Bucket: "b", Key: "k"}
	})

	AfterEach(func() { os.RemoveAll(dir) })

	It("round-trips writes and reads and grows size", func() {
		h, err := handle.NewLocalMmap(id, path, nil)
		Expect(err).NotTo(HaveOccurred())
		defer h.Close()

		n, err := h.WriteBytes([]byte("hello world"), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(11))
		Expect(h.Size()).To(Equal(int64(11)))

		buf := make([]byte, 11)
		n, err = h.ReadBytes(buf, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(11))
		Expect(string(buf)).To(Equal("hello world"))
	})

	It("rejects RawPtr before Seal and allows it after", func() {
		h, err := handle.NewLocalMmap(id, path, nil)
		Expect(err).NotTo(HaveOccurred())
		defer h.Close()

		_, err = h.WriteBytes([]byte("data"), 0)
		Expect(err).NotTo(HaveOccurred())

		_, err = h.RawPtr(0, 4)
		Expect(err).To(HaveOccurred())

		Expect(h.Seal()).To(Succeed())
		p, err := h.RawPtr(0, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(p)).To(Equal("data"))
	})

	It("tracks OpenCount and fires onUnused at zero", func() {
		unused := 0
		h, err := handle.NewLocalMmap(id, path, func() { unused++ })
		Expect(err).NotTo(HaveOccurred())
		defer h.Close()

		Expect(h.Open()).To(Equal(int64(1)))
		Expect(h.Open()).To(Equal(int64(2)))
		Expect(h.Release()).To(Equal(int64(1)))
		Expect(unused).To(Equal(0))
		Expect(h.Release()).To(Equal(int64(0)))
		Expect(unused).To(Equal(1))
	})

	It("invalidates and deletes the file on Close", func() {
		h, err := handle.NewLocalMmap(id, path, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.IsValid()).To(BeTrue())
		Expect(h.Close()).To(Succeed())
		Expect(h.IsValid()).To(BeFalse())
		_, err = os.Stat(path)
		Expect(os.IsNotExist(err)).To(BeTrue())
	})
})
