package index

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rivulet-db/rivulet/pkg/change"
	"github.com/rivulet-db/rivulet/pkg/types"
)

func TestSnapshotIndex(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Snapshot Index Suite")
}

var _ = Describe("Snapshot", func() {
	var idx *Snapshot

	row := func(k, v int64) types.Row {
		return types.NewRow(types.Int(k), types.Int(v))
	}

	BeforeEach(func() {
		idx = NewSnapshot("dim", 0)
	})

	It("should expose staged records only after commit", func() {
		idx.Stage([]change.Record{change.NewInsert("dim", row(1, 11))})

		_, found, err := idx.Lookup(types.Int(1), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())

		Expect(idx.Commit(1)).To(Succeed())
		got, found, err := idx.Lookup(types.Int(1), 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(got[1].Int64()).To(Equal(int64(11)))
	})

	It("should ignore records for other tables", func() {
		idx.Stage([]change.Record{change.NewInsert("other", row(1, 11))})
		Expect(idx.Commit(1)).To(Succeed())
		_, found, err := idx.Lookup(types.Int(1), 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("should answer lookups as of earlier epochs", func() {
		idx.Stage([]change.Record{change.NewInsert("dim", row(1, 11))})
		Expect(idx.Commit(1)).To(Succeed())

		idx.Stage([]change.Record{
			change.NewDelete("dim", row(1, 11)),
			change.NewInsert("dim", row(1, 99)),
		})
		Expect(idx.Commit(2)).To(Succeed())

		got, found, err := idx.Lookup(types.Int(1), 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(got[1].Int64()).To(Equal(int64(11)))

		got, found, err = idx.Lookup(types.Int(1), 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(got[1].Int64()).To(Equal(int64(99)))
	})

	It("should report absence after a delete and presence after reinsert", func() {
		idx.Stage([]change.Record{change.NewInsert("dim", row(1, 11))})
		Expect(idx.Commit(1)).To(Succeed())
		idx.Stage([]change.Record{change.NewDelete("dim", row(1, 11))})
		Expect(idx.Commit(2)).To(Succeed())
		idx.Stage([]change.Record{change.NewInsert("dim", row(1, 42))})
		Expect(idx.Commit(3)).To(Succeed())

		_, found, err := idx.Lookup(types.Int(1), 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())

		got, found, err := idx.Lookup(types.Int(1), 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(got[1].Int64()).To(Equal(int64(42)))
	})

	It("should apply retract-then-insert of one epoch all-or-nothing", func() {
		idx.Stage([]change.Record{change.NewInsert("dim", row(1, 11))})
		Expect(idx.Commit(1)).To(Succeed())

		// One epoch carrying both halves of an upsert: a lookup at that epoch sees
		// only the final value, never the intermediate tombstone.
		idx.Stage([]change.Record{
			change.NewDelete("dim", row(1, 11)),
			change.NewInsert("dim", row(1, 12)),
		})
		Expect(idx.Commit(2)).To(Succeed())

		got, found, err := idx.Lookup(types.Int(1), 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(got[1].Int64()).To(Equal(int64(12)))
	})

	It("should refuse lookups ahead of the committed epoch", func() {
		_, _, err := idx.Lookup(types.Int(1), 5)
		Expect(err).To(HaveOccurred())
	})

	It("should refuse commits that do not advance the epoch", func() {
		Expect(idx.Commit(1)).To(Succeed())
		Expect(idx.Commit(1)).NotTo(Succeed())
	})

	It("should keep lookups at the watermark working after pruning", func() {
		idx.Stage([]change.Record{change.NewInsert("dim", row(1, 11))})
		Expect(idx.Commit(1)).To(Succeed())
		idx.Stage([]change.Record{change.NewInsert("dim", row(1, 22))})
		Expect(idx.Commit(2)).To(Succeed())

		idx.Prune(2)

		got, found, err := idx.Lookup(types.Int(1), 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(got[1].Int64()).To(Equal(int64(22)))
	})

	It("should drop keys whose only retained version is a tombstone", func() {
		idx.Stage([]change.Record{change.NewInsert("dim", row(1, 11))})
		Expect(idx.Commit(1)).To(Succeed())
		idx.Stage([]change.Record{change.NewDelete("dim", row(1, 11))})
		Expect(idx.Commit(2)).To(Succeed())

		idx.Prune(2)
		Expect(idx.Len()).To(Equal(0))

		_, found, err := idx.Lookup(types.Int(1), 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})
})
