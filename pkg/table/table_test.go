package table

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rivulet-db/rivulet/pkg/change"
	"github.com/rivulet-db/rivulet/pkg/types"
)

func TestTables(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Table Suite")
}

var streamSchema = types.NewSchema(
	types.Column{Name: "k", Type: types.TypeInt64},
	types.Column{Name: "v", Type: types.TypeInt64},
)

var _ = Describe("AppendOnly", func() {
	var t *AppendOnly

	BeforeEach(func() {
		t = NewAppendOnly("events", streamSchema)
	})

	It("should expose staged rows only after commit", func() {
		_, err := t.StageAppend(types.NewRow(types.Int(1), types.Int(11)))
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Len()).To(Equal(0))

		t.Commit()
		Expect(t.Len()).To(Equal(1))
	})

	It("should reject rows violating the schema before staging", func() {
		_, err := t.StageAppend(types.NewRow(types.Int(1)))
		Expect(errors.Is(err, types.ErrSchemaMismatch)).To(BeTrue())
		t.Commit()
		Expect(t.Len()).To(Equal(0))
	})

	It("should refuse delete and update", func() {
		Expect(errors.Is(t.StageDelete(), types.ErrUnsupportedOperation)).To(BeTrue())
		Expect(errors.Is(t.StageUpdate(), types.ErrUnsupportedOperation)).To(BeTrue())
	})

	It("should scan history in arrival order and stay finite under appends", func() {
		for i := int64(1); i <= 3; i++ {
			_, err := t.StageAppend(types.NewRow(types.Int(i), types.Int(i*11)))
			Expect(err).NotTo(HaveOccurred())
		}
		t.Commit()

		scanner := t.Scan()

		// Rows committed after the scan started stay invisible to it.
		_, err := t.StageAppend(types.NewRow(types.Int(4), types.Int(44)))
		Expect(err).NotTo(HaveOccurred())
		t.Commit()

		var got []int64
		for scanner.Next() {
			got = append(got, scanner.Row()[0].Int64())
		}
		Expect(got).To(Equal([]int64{1, 2, 3}))

		scanner.Restart()
		Expect(scanner.Next()).To(BeTrue())
		Expect(scanner.Row()[0].Int64()).To(Equal(int64(1)))
	})

	It("should discard staged rows on abort", func() {
		_, err := t.StageAppend(types.NewRow(types.Int(1), types.Int(11)))
		Expect(err).NotTo(HaveOccurred())
		t.Abort()
		t.Commit()
		Expect(t.Len()).To(Equal(0))
	})
})

var _ = Describe("Versioned", func() {
	var (
		t   *Versioned
		err error
	)

	schema := types.NewSchema(
		types.Column{Name: "k", Type: types.TypeInt64},
		types.Column{Name: "v", Type: types.TypeInt64},
	)

	BeforeEach(func() {
		t, err = NewVersioned("dim", schema, "k")
		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject an unknown primary key column", func() {
		_, err := NewVersioned("bad", schema, "missing")
		Expect(errors.Is(err, types.ErrSchemaMismatch)).To(BeTrue())
	})

	It("should emit a bare insert for a fresh key", func() {
		recs, err := t.StageUpsert(types.NewRow(types.Int(1), types.Int(11)))
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(HaveLen(1))
		Expect(recs[0].Op).To(Equal(change.OpInsert))
	})

	It("should emit retract-then-insert when the key is live", func() {
		_, err := t.StageUpsert(types.NewRow(types.Int(1), types.Int(11)))
		Expect(err).NotTo(HaveOccurred())
		t.Commit()

		recs, err := t.StageUpsert(types.NewRow(types.Int(1), types.Int(99)))
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(HaveLen(2))
		Expect(recs[0].Op).To(Equal(change.OpDelete))
		Expect(recs[0].Row[1].Int64()).To(Equal(int64(11)))
		Expect(recs[1].Op).To(Equal(change.OpInsert))
		Expect(recs[1].Row[1].Int64()).To(Equal(int64(99)))
	})

	It("should keep at most one live row per key", func() {
		_, err := t.StageUpsert(types.NewRow(types.Int(1), types.Int(11)))
		Expect(err).NotTo(HaveOccurred())
		_, err = t.StageUpsert(types.NewRow(types.Int(1), types.Int(22)))
		Expect(err).NotTo(HaveOccurred())
		t.Commit()

		Expect(t.Len()).To(Equal(1))
		row, ok, err := t.Current(types.Int(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(row[1].Int64()).To(Equal(int64(22)))
	})

	It("should treat deleting an absent key as zero-effect success", func() {
		recs, err := t.StageDelete(types.Int(42))
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(BeEmpty())
	})

	It("should retract staged-but-uncommitted rows on delete within the same epoch", func() {
		_, err := t.StageUpsert(types.NewRow(types.Int(1), types.Int(11)))
		Expect(err).NotTo(HaveOccurred())

		recs, err := t.StageDelete(types.Int(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(HaveLen(1))
		Expect(recs[0].Op).To(Equal(change.OpDelete))

		t.Commit()
		_, ok, err := t.Current(types.Int(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should mass-delete every live row and stay idempotent", func() {
		_, err := t.StageUpsert(types.NewRow(types.Int(1), types.Int(11)))
		Expect(err).NotTo(HaveOccurred())
		_, err = t.StageUpsert(types.NewRow(types.Int(2), types.Int(22)))
		Expect(err).NotTo(HaveOccurred())
		t.Commit()

		recs, err := t.StageDeleteAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(HaveLen(2))
		t.Commit()
		Expect(t.Len()).To(Equal(0))

		recs, err = t.StageDeleteAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(BeEmpty())
	})

	It("should reject NULL primary keys", func() {
		_, err := t.StageUpsert(types.NewRow(types.Null(), types.Int(1)))
		Expect(errors.Is(err, types.ErrSchemaMismatch)).To(BeTrue())
	})
})
