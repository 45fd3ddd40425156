package path_test

import (
	"sort"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/onsi/ginkgo/extensions/table"

	"github.com/geds-project/geds/path"
)

// sortedKeys adapts a sorted []string to path.Ordered.
type sortedKeys []string

func (s sortedKeys) Len() int          { return len(s) }
func (s sortedKeys) At(i int) path.Path { return path.Path{Name: s[i]} }

var _ = Describe("PrefixRange", func() {
	keys := sortedKeys{"a/1", "a/2", "a/3", "a0", "b/1", "b/2", "c"}

	table.DescribeTable("returns the contiguous range matching a prefix",
		func(prefix string, wantBegin, wantEnd int) {
			begin, end := path.PrefixRange(keys, prefix)
			Expect(begin).To(Equal(wantBegin))
			Expect(end).To(Equal(wantEnd))
		},
		table.Entry("whole a/ group", "a/", 0, 3),
		table.Entry("whole b/ group", "b/", 4, 6),
		table.Entry("single key", "c", 6, 7),
		table.Entry("no match", "zzz", 7, 7),
		table.Entry("empty prefix matches everything", "", 0, 7),
	)

	It("fails cleanly (empty range) when nothing matches", func() {
		begin, end := path.PrefixRange(keys, "nomatch")
		Expect(begin).To(Equal(end))
	})

	It("agrees with a linear scan for every prefix of every key", func() {
		for _, k := range keys {
			for i := 1; i <= len(k); i++ {
				prefix := k[:i]
				begin, end := path.PrefixRange(keys, prefix)

				var want []string
				for _, kk := range keys {
					if len(kk) >= len(prefix) && kk[:len(prefix)] == prefix {
						want = append(want, kk)
					}
				}
				got := []string(keys[begin:end])
				Expect(got).To(Equal(want))
			}
		}
	})
})

var _ = Describe("Order", func() {
	It("is byte-lex and independent of insertion order", func() {
		names := []string{"banana", "apple", "cherry"}
		sort.Slice(names, func(i, j int) bool {
			return path.Less(path.Path{Name: names[i]}, path.Path{Name: names[j]})
		})
		Expect(names).To(Equal([]string{"apple", "banana", "cherry"}))
	})
})

var _ = Describe("FileStatus ordering", func() {
	It("sorts files before directories at equal rank, then byte-lex", func() {
		a := path.FileStatus{Name: "z", IsDirectory: false}
		b := path.FileStatus{Name: "a", IsDirectory: true}
		Expect(a.Less(b)).To(BeTrue())
		Expect(b.Less(a)).To(BeFalse())

		c := path.FileStatus{Name: "a", IsDirectory: false}
		d := path.FileStatus{Name: "b", IsDirectory: false}
		Expect(c.Less(d)).To(BeTrue())
	})
})
