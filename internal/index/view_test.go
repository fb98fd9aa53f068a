package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnmed/lucent/api"
	"github.com/cairnmed/lucent/internal/model"
)

func record(pat, name, study string, date time.Time, series string, num int, sop string) api.InstanceRecord {
	return api.InstanceRecord{
		PatientID:      pat,
		PatientName:    name,
		StudyUID:       study,
		StudyDate:      date,
		SeriesUID:      series,
		SeriesNumber:   num,
		SOPInstanceUID: sop,
		InstanceNumber: 1,
	}
}

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func TestView_PatientsSortedByName(t *testing.T) {
	tree := model.NewTree()
	v := New(tree)

	zOut, _ := tree.AddInstance(record("p1", "Zimmer", "st1", day(1), "se1", 1, "i1"))
	aOut, _ := tree.AddInstance(record("p2", "Abbott", "st2", day(1), "se2", 1, "i2"))

	patients := v.Patients()
	require.Len(t, patients, 2)
	assert.Equal(t, aOut.Patient, patients[0])
	assert.Equal(t, zOut.Patient, patients[1])
}

func TestView_FirstPatientSelected(t *testing.T) {
	tree := model.NewTree()
	New(tree)

	var selected []model.NodeID
	tree.AddListener(func(ev model.Event) {
		if ev.Action == model.ActionSelected {
			selected = append(selected, ev.Node)
		}
	})

	first, _ := tree.AddInstance(record("p1", "Zimmer", "st1", day(1), "se1", 1, "i1"))
	tree.AddInstance(record("p2", "Abbott", "st2", day(1), "se2", 1, "i2"))

	// The first patient keeps focus even when a later one sorts before it.
	require.Len(t, selected, 1)
	assert.Equal(t, first.Patient, selected[0])
	assert.Equal(t, first.Patient, tree.Selected())
}

func TestView_StudiesNewestFirst(t *testing.T) {
	tree := model.NewTree()
	v := New(tree)

	older, _ := tree.AddInstance(record("p1", "A", "st-old", day(1), "se1", 1, "i1"))
	newer, _ := tree.AddInstance(record("p1", "A", "st-new", day(20), "se2", 1, "i2"))

	studies := v.Studies(older.Patient)
	require.Len(t, studies, 2)
	assert.Equal(t, newer.Study, studies[0])
	assert.Equal(t, older.Study, studies[1])
}

func TestView_SeriesByNumber(t *testing.T) {
	tree := model.NewTree()
	v := New(tree)

	hi, _ := tree.AddInstance(record("p1", "A", "st1", day(1), "se9", 9, "i1"))
	lo, _ := tree.AddInstance(record("p1", "A", "st1", day(1), "se2", 2, "i2"))

	series := v.Series(hi.Study)
	require.Len(t, series, 2)
	assert.Equal(t, lo.Series, series[0])
	assert.Equal(t, hi.Series, series[1])
}

func TestView_RemovalCascadesThroughLists(t *testing.T) {
	tree := model.NewTree()
	v := New(tree)

	a, _ := tree.AddInstance(record("p1", "A", "st1", day(1), "se1", 1, "i1"))
	b, _ := tree.AddInstance(record("p2", "B", "st2", day(1), "se2", 1, "i2"))

	tree.Remove(a.Patient)

	patients := v.Patients()
	require.Len(t, patients, 1)
	assert.Equal(t, b.Patient, patients[0])
	assert.Empty(t, v.Studies(a.Patient))
	assert.Empty(t, v.Series(a.Study))
}

func TestView_FocusMovesAfterSelectedRemoved(t *testing.T) {
	tree := model.NewTree()
	New(tree)

	a, _ := tree.AddInstance(record("p1", "A", "st1", day(1), "se1", 1, "i1"))
	b, _ := tree.AddInstance(record("p2", "B", "st2", day(1), "se2", 1, "i2"))
	require.Equal(t, a.Patient, tree.Selected())

	tree.Remove(a.Patient)
	assert.Equal(t, b.Patient, tree.Selected())
}

func TestView_ReplaceKeepsDisplayPosition(t *testing.T) {
	tree := model.NewTree()
	v := New(tree)

	tree.AddInstance(record("p1", "A", "st1", day(1), "se1", 1, "i1"))
	mid, _ := tree.AddInstance(record("p1", "A", "st1", day(1), "se5", 5, "i2"))
	tree.AddInstance(record("p1", "A", "st1", day(1), "se9", 9, "i3"))

	id, err := tree.ReplaceSeries(mid.Series, "se5b", map[model.Tag]any{
		model.TagSeriesUID:    "se5b",
		model.TagSeriesNumber: 5,
	})
	require.NoError(t, err)

	series := v.Series(mid.Study)
	require.Len(t, series, 3)
	assert.Equal(t, id, series[1])
}

func TestView_OnAddReportsPositions(t *testing.T) {
	tree := model.NewTree()
	// Unsubscribed view: drive it by hand to observe reported positions.
	v := &View{
		tree:    tree,
		studies: make(map[model.NodeID][]model.NodeID),
		series:  make(map[model.NodeID][]model.NodeID),
	}

	z, _ := tree.AddInstance(record("p1", "Zimmer", "st1", day(1), "se1", 1, "i1"))
	a, _ := tree.AddInstance(record("p2", "Abbott", "st2", day(1), "se2", 1, "i2"))

	pos := v.OnAdd(model.LevelPatient, z.Patient)
	assert.Equal(t, 0, pos.Patient)
	assert.Equal(t, -1, pos.Study)
	assert.Equal(t, -1, pos.Series)

	// Abbott sorts before Zimmer.
	pos = v.OnAdd(model.LevelPatient, a.Patient)
	assert.Equal(t, 0, pos.Patient)

	pos = v.OnAdd(model.LevelStudy, z.Study)
	assert.Equal(t, 0, pos.Study)

	pos = v.OnAdd(model.LevelSeries, z.Series)
	assert.Equal(t, 0, pos.Series)
}

func TestView_RebuildMatchesIncremental(t *testing.T) {
	tree := model.NewTree()
	v := New(tree)

	tree.AddInstance(record("p1", "Zimmer", "st1", day(3), "se2", 2, "i1"))
	tree.AddInstance(record("p2", "Abbott", "st2", day(1), "se1", 1, "i2"))
	tree.AddInstance(record("p1", "Zimmer", "st3", day(9), "se3", 3, "i3"))

	before := v.Patients()
	beforeStudies := make(map[model.NodeID][]model.NodeID)
	for _, p := range before {
		beforeStudies[p] = v.Studies(p)
	}

	v.Rebuild()

	require.Equal(t, before, v.Patients())
	for p, studies := range beforeStudies {
		assert.Equal(t, studies, v.Studies(p))
	}
}
