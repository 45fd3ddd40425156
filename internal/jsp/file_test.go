package jsp_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/geds-project/geds/internal/jsp"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

var _ = Describe("Save/Load", func() {
	It("round-trips a struct through a file", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "meta.json")

		in := record{Name: "a", Count: 3}
		Expect(jsp.Save(path, in)).To(Succeed())

		var out record
		Expect(jsp.Load(path, &out)).To(Succeed())
		Expect(out).To(Equal(in))
	})

	It("leaves no temp file behind on success", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "meta.json")
		Expect(jsp.Save(path, record{Name: "x"})).To(Succeed())

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Name()).To(Equal("meta.json"))
	})

	It("does not replace the destination if encoding fails", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "meta.json")
		Expect(jsp.Save(path, record{Name: "original"})).To(Succeed())

		err := jsp.Save(path, func() {}) // unsupported by the JSON encoder
		Expect(err).To(HaveOccurred())

		var out record
		Expect(jsp.Load(path, &out)).To(Succeed())
		Expect(out.Name).To(Equal("original"))
	})
})
