package zset

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rivulet-db/rivulet/pkg/types"
)

func TestRowZSet(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ZSet Suite")
}

var _ = Describe("RowZSet", func() {
	var (
		row1 types.Row
		row2 types.Row
	)

	BeforeEach(func() {
		row1 = types.NewRow(types.Int(1), types.String_("a"))
		row2 = types.NewRow(types.Int(2), types.String_("b"))
	})

	It("should accumulate multiplicities for identical rows", func() {
		zs := New()
		Expect(zs.AddRowMutate(row1, 1)).To(Succeed())
		Expect(zs.AddRowMutate(row1.Copy(), 2)).To(Succeed())

		count, err := zs.Multiplicity(row1)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(3))
		Expect(zs.Unique()).To(Equal(1))
		Expect(zs.Size()).To(Equal(3))
	})

	It("should drop entries that cancel to zero", func() {
		zs := New()
		Expect(zs.AddRowMutate(row1, 2)).To(Succeed())
		Expect(zs.AddRowMutate(row1, -2)).To(Succeed())
		Expect(zs.IsZero()).To(BeTrue())
	})

	It("should add and subtract Z-sets", func() {
		a := New()
		Expect(a.AddRowMutate(row1, 1)).To(Succeed())
		Expect(a.AddRowMutate(row2, 1)).To(Succeed())

		b := New()
		Expect(b.AddRowMutate(row2, 1)).To(Succeed())

		sum, err := a.Add(b)
		Expect(err).NotTo(HaveOccurred())
		count, err := sum.Multiplicity(row2)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(2))

		diff, err := sum.Subtract(b)
		Expect(err).NotTo(HaveOccurred())
		count, err = diff.Multiplicity(row2)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	It("should not mutate the receiver on non-destructive ops", func() {
		a := New()
		Expect(a.AddRowMutate(row1, 1)).To(Succeed())

		_, err := a.AddRow(row1, 5)
		Expect(err).NotTo(HaveOccurred())
		count, err := a.Multiplicity(row1)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	It("should collapse to set semantics with Distinct", func() {
		zs := New()
		Expect(zs.AddRowMutate(row1, 3)).To(Succeed())
		Expect(zs.AddRowMutate(row2, -1)).To(Succeed())

		d := zs.Distinct()
		count, err := d.Multiplicity(row1)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
		count, err = d.Multiplicity(row2)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(0))
	})

	It("should expand multiplicities in Collect", func() {
		zs := New()
		Expect(zs.AddRowMutate(row1, 2)).To(Succeed())
		rows := zs.Collect()
		Expect(rows).To(HaveLen(2))
		Expect(rows[0].Equal(rows[1])).To(BeTrue())
	})
})
