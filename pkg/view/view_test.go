package view

import (
	"errors"
	"testing"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rivulet-db/rivulet/pkg/change"
	"github.com/rivulet-db/rivulet/pkg/plan"
	"github.com/rivulet-db/rivulet/pkg/table"
	"github.com/rivulet-db/rivulet/pkg/types"
)

func TestViews(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "View Suite")
}

var (
	streamSchema = types.NewSchema(
		types.Column{Name: "k", Type: types.TypeInt64},
		types.Column{Name: "v", Type: types.TypeInt64},
	)
	versionSchema = types.NewSchema(
		types.Column{Name: "k", Type: types.TypeInt64},
		types.Column{Name: "v", Type: types.TypeInt64},
	)
	joinPlan = plan.SnapshotJoin{
		Stream:       "events",
		Versioned:    "dim",
		StreamKey:    "k",
		VersionedKey: "k",
	}
)

var _ = Describe("State", func() {
	It("should retain duplicates in emission order", func() {
		s := NewState(streamSchema)
		row := types.NewRow(types.Int(1), types.Int(11))
		s.Append(1, []types.Row{row, row.Copy()})

		rows := s.Rows()
		Expect(rows).To(HaveLen(2))
		Expect(rows[0].Equal(rows[1])).To(BeTrue())
	})

	It("should isolate query snapshots from later appends", func() {
		s := NewState(streamSchema)
		s.Append(1, []types.Row{types.NewRow(types.Int(1), types.Int(11))})
		snapshot := s.Rows()
		s.Append(2, []types.Row{types.NewRow(types.Int(2), types.Int(22))})
		Expect(snapshot).To(HaveLen(1))
	})

	It("should sort only when asked", func() {
		s := NewState(streamSchema)
		s.Append(1, []types.Row{
			types.NewRow(types.Int(2), types.Int(22)),
			types.NewRow(types.Int(1), types.Int(11)),
		})
		sorted := s.SortedRows()
		Expect(sorted[0][0].Int64()).To(Equal(int64(1)))
		// Emission order is untouched.
		Expect(s.Rows()[0][0].Int64()).To(Equal(int64(2)))
	})
})

var _ = Describe("View", func() {
	It("should refuse joining the versioned side on a non-primary-key column", func() {
		p := joinPlan
		p.VersionedKey = "v"
		_, err := New("v1", p, streamSchema, versionSchema, 0)
		Expect(errors.Is(err, types.ErrUnsupportedOperation)).To(BeTrue())
	})

	It("should refuse join columns of different types", func() {
		mixed := types.NewSchema(
			types.Column{Name: "k", Type: types.TypeString},
			types.Column{Name: "v", Type: types.TypeInt64},
		)
		_, err := New("v1", joinPlan, mixed, versionSchema, 0)
		Expect(errors.Is(err, types.ErrTypeMismatch)).To(BeTrue())
	})

	It("should never revisit already-emitted rows", func() {
		v, err := New("v1", joinPlan, streamSchema, versionSchema, 0)
		Expect(err).NotTo(HaveOccurred())

		v.StageIndex([]change.Record{change.NewInsert("dim", types.NewRow(types.Int(1), types.Int(100)))})
		Expect(v.Index().Commit(1)).To(Succeed())
		Expect(v.ProcessStreamRows(1, []types.Row{types.NewRow(types.Int(1), types.Int(11))})).To(Succeed())

		before := v.State().Rows()
		Expect(before).To(HaveLen(1))
		Expect(before[0][2].Int64()).To(Equal(int64(1)))

		// Mutating the versioned side afterwards must not rewrite the emitted row.
		v.StageIndex([]change.Record{change.NewDelete("dim", types.NewRow(types.Int(1), types.Int(100)))})
		Expect(v.Index().Commit(2)).To(Succeed())

		after := v.State().Rows()
		Expect(after).To(HaveLen(1))
		Expect(after[0].Equal(before[0])).To(BeTrue())
	})
})

var _ = Describe("Manager", func() {
	var (
		m         *Manager
		stream    *table.AppendOnly
		versioned *table.Versioned
	)

	commitStream := func(rows ...types.Row) {
		for _, r := range rows {
			_, err := stream.StageAppend(r)
			Expect(err).NotTo(HaveOccurred())
		}
		stream.Commit()
	}

	BeforeEach(func() {
		var err error
		m = NewManager(logr.Discard())
		stream = table.NewAppendOnly("events", streamSchema)
		versioned, err = table.NewVersioned("dim", versionSchema, "k")
		Expect(err).NotTo(HaveOccurred())
	})

	It("should backfill the full stream history at creation", func() {
		commitStream(
			types.NewRow(types.Int(1), types.Int(11)),
			types.NewRow(types.Int(2), types.Int(22)),
		)
		_, err := versioned.StageUpsert(types.NewRow(types.Int(1), types.Int(100)))
		Expect(err).NotTo(HaveOccurred())
		versioned.Commit()

		v, err := m.Create("v1", joinPlan, stream, versioned, 1)
		Expect(err).NotTo(HaveOccurred())

		rows := v.State().SortedRows()
		Expect(rows).To(HaveLen(2))
		Expect(rows[0].Equal(types.NewRow(types.Int(1), types.Int(11), types.Int(1), types.Int(100)))).To(BeTrue())
		Expect(rows[1][2].IsNull()).To(BeTrue())
	})

	It("should refuse duplicate view names", func() {
		_, err := m.Create("v1", joinPlan, stream, versioned, 1)
		Expect(err).NotTo(HaveOccurred())
		_, err = m.Create("v1", joinPlan, stream, versioned, 2)
		Expect(err).To(HaveOccurred())
	})

	It("should drop and miss dropped views", func() {
		_, err := m.Create("v1", joinPlan, stream, versioned, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Drop("v1")).To(Succeed())
		Expect(errors.Is(m.Drop("v1"), types.ErrNotFound)).To(BeTrue())
		_, err = m.Get("v1")
		Expect(errors.Is(err, types.ErrNotFound)).To(BeTrue())
	})

	It("should give a recreated view a fresh identity and fresh contents", func() {
		commitStream(types.NewRow(types.Int(1), types.Int(11)))
		_, err := versioned.StageUpsert(types.NewRow(types.Int(1), types.Int(100)))
		Expect(err).NotTo(HaveOccurred())
		versioned.Commit()

		v1, err := m.Create("v1", joinPlan, stream, versioned, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(v1.State().Rows()[0][2].Int64()).To(Equal(int64(1)))
		firstID := v1.InstanceID()

		Expect(m.Drop("v1")).To(Succeed())

		// The versioned table changed in between: the recreated view reflects the
		// new state across the whole history.
		_, err = versioned.StageDelete(types.Int(1))
		Expect(err).NotTo(HaveOccurred())
		versioned.Commit()

		v2, err := m.Create("v1", joinPlan, stream, versioned, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(v2.InstanceID()).NotTo(Equal(firstID))
		Expect(v2.State().Rows()[0][2].IsNull()).To(BeTrue())
	})
})
