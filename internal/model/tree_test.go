package model

import (
	"errors"
	"testing"

	"github.com/cairnmed/lucent/api"
)

func rec(pat, study, series, sop string, num int) api.InstanceRecord {
	return api.InstanceRecord{
		PatientID:      pat,
		StudyUID:       study,
		SeriesUID:      series,
		SOPInstanceUID: sop,
		InstanceNumber: num,
	}
}

func TestTree_AddInstanceCreatesHierarchy(t *testing.T) {
	tr := NewTree()
	out, err := tr.AddInstance(rec("p1", "st1", "se1", "i1", 1))
	if err != nil {
		t.Fatalf("AddInstance returned error: %v", err)
	}
	if !out.CreatedPatient || !out.CreatedStudy || !out.CreatedSeries {
		t.Errorf("creation flags = %v/%v/%v, want all true",
			out.CreatedPatient, out.CreatedStudy, out.CreatedSeries)
	}
	if out.Index != 0 {
		t.Errorf("Index = %d, want 0", out.Index)
	}
	if got := len(tr.Patients()); got != 1 {
		t.Fatalf("patients = %d, want 1", got)
	}
	if tr.Level(out.Series) != LevelSeries || tr.Key(out.Series) != "se1" {
		t.Errorf("series node = %v/%q, want series/se1", tr.Level(out.Series), tr.Key(out.Series))
	}
}

func TestTree_ReuseExistingAncestors(t *testing.T) {
	tr := NewTree()
	first, _ := tr.AddInstance(rec("p1", "st1", "se1", "i1", 1))
	second, err := tr.AddInstance(rec("p1", "st1", "se1", "i2", 2))
	if err != nil {
		t.Fatalf("AddInstance returned error: %v", err)
	}
	if second.CreatedPatient || second.CreatedStudy || second.CreatedSeries {
		t.Error("second add should not create any ancestor")
	}
	if second.Series != first.Series {
		t.Errorf("series = %d, want %d", second.Series, first.Series)
	}
}

func TestTree_OrderedInsertionEqualAfter(t *testing.T) {
	tr := NewTree()
	for _, c := range []struct {
		sop string
		num int
	}{
		{"a", 1}, {"b", 2}, {"c", 2}, {"d", 4},
	} {
		if _, err := tr.AddInstance(rec("p", "st", "se", c.sop, c.num)); err != nil {
			t.Fatalf("AddInstance(%s): %v", c.sop, err)
		}
	}

	out, err := tr.AddInstance(rec("p", "st", "se", "e", 2))
	if err != nil {
		t.Fatalf("AddInstance(e): %v", err)
	}
	if out.Index != 3 {
		t.Errorf("Index = %d, want 3 (after existing equal numbers)", out.Index)
	}
	want := []string{"a", "b", "c", "e", "d"}
	got := tr.InstanceUIDs(out.Series)
	if len(got) != len(want) {
		t.Fatalf("instances = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("instances = %v, want %v", got, want)
		}
	}
}

func TestTree_DuplicateInstanceRejected(t *testing.T) {
	tr := NewTree()
	out, _ := tr.AddInstance(rec("p", "st", "se", "i1", 1))

	fired := 0
	tr.AddListener(func(Event) { fired++ })

	if _, err := tr.AddInstance(rec("p", "st", "se", "i1", 9)); !errors.Is(err, ErrDuplicateInstance) {
		t.Fatalf("err = %v, want ErrDuplicateInstance", err)
	}
	if fired != 0 {
		t.Errorf("events fired = %d, want 0 (tree untouched)", fired)
	}
	if got := len(tr.Children(out.Series)); got != 1 {
		t.Errorf("instances = %d, want 1", got)
	}
}

func TestTree_MissingIdentityRejected(t *testing.T) {
	tr := NewTree()
	if _, err := tr.AddInstance(rec("", "st", "se", "i1", 1)); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("err = %v, want ErrMissingIdentity", err)
	}
	if _, err := tr.AddInstance(rec("p", "st", "se", "", 1)); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("err = %v, want ErrMissingIdentity", err)
	}
}

func TestTree_AddEventsTopDown(t *testing.T) {
	tr := NewTree()
	var seen []Level
	tr.AddListener(func(ev Event) {
		if ev.Action == ActionAdded {
			seen = append(seen, ev.Level)
		}
	})

	if _, err := tr.AddInstance(rec("p", "st", "se", "i1", 1)); err != nil {
		t.Fatalf("AddInstance: %v", err)
	}
	want := []Level{LevelPatient, LevelStudy, LevelSeries, LevelInstance}
	if len(seen) != len(want) {
		t.Fatalf("added events = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("added events = %v, want %v", seen, want)
		}
	}
}

func TestTree_RemoveCascadesChildFirst(t *testing.T) {
	tr := NewTree()
	tr.AddInstance(rec("p", "st", "se", "i1", 1))
	out, _ := tr.AddInstance(rec("p", "st", "se", "i2", 2))

	var seen []Level
	tr.AddListener(func(ev Event) {
		if ev.Action == ActionRemoved {
			seen = append(seen, ev.Level)
		}
	})

	removed := tr.Remove(out.Series)
	want := []Level{LevelInstance, LevelInstance, LevelSeries, LevelStudy, LevelPatient}
	if len(seen) != len(want) {
		t.Fatalf("removed events = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("removed events = %v, want %v", seen, want)
		}
	}
	if len(removed.Nodes) != 5 {
		t.Errorf("removed nodes = %d, want 5", len(removed.Nodes))
	}
	if tr.Alive(out.Series) || tr.Alive(out.Study) || tr.Alive(out.Patient) {
		t.Error("cascade should have removed the emptied ancestors")
	}
	if got := len(tr.Patients()); got != 0 {
		t.Errorf("patients = %d, want 0", got)
	}
}

func TestTree_RemoveLastInstanceCascades(t *testing.T) {
	tr := NewTree()
	out, _ := tr.AddInstance(rec("p", "st", "se", "i1", 1))
	tr.Remove(out.Instance)
	if tr.Alive(out.Series) || tr.Alive(out.Study) || tr.Alive(out.Patient) {
		t.Error("removing the last instance should cascade to the patient")
	}
}

func TestTree_RemoveKeepsPopulatedAncestors(t *testing.T) {
	tr := NewTree()
	a, _ := tr.AddInstance(rec("p", "st", "seA", "i1", 1))
	b, _ := tr.AddInstance(rec("p", "st", "seB", "i2", 1))

	tr.Remove(a.Series)
	if !tr.Alive(b.Series) || !tr.Alive(b.Study) || !tr.Alive(b.Patient) {
		t.Error("ancestors with remaining children must survive")
	}
}

func TestTree_StaleIDNeverResolves(t *testing.T) {
	tr := NewTree()
	out, _ := tr.AddInstance(rec("p", "st", "se", "i1", 1))
	stale := out.Instance
	tr.Remove(stale)

	if tr.Alive(stale) {
		t.Error("stale id should be dead")
	}
	// New nodes take fresh slots; the stale id stays dead.
	tr.AddInstance(rec("p2", "st2", "se2", "i2", 1))
	if tr.Alive(stale) {
		t.Error("stale id must not resolve to a reused slot")
	}
}

func TestTree_MoveInstance(t *testing.T) {
	tr := NewTree()
	a, _ := tr.AddInstance(rec("p", "st", "seA", "i1", 3))
	tr.AddInstance(rec("p", "st", "seA", "i2", 1))
	b, _ := tr.AddInstance(rec("p", "st", "seB", "i3", 2))

	var moved []Event
	tr.AddListener(func(ev Event) {
		if ev.Action == ActionParentUpdated {
			moved = append(moved, ev)
		}
	})

	if err := tr.MoveInstance(a.Instance, b.Series); err != nil {
		t.Fatalf("MoveInstance: %v", err)
	}
	if len(moved) != 1 || moved[0].Node != a.Instance || moved[0].Old != a.Series {
		t.Fatalf("ParentUpdated events = %+v", moved)
	}
	// Sorted position in the target: i3 has number 2, i1 has 3.
	got := tr.InstanceUIDs(b.Series)
	if len(got) != 2 || got[0] != "i3" || got[1] != "i1" {
		t.Errorf("target instances = %v, want [i3 i1]", got)
	}
	if !tr.Alive(a.Series) {
		t.Error("source series still holds i2 and must survive")
	}
}

func TestTree_MoveLastInstanceCascadesSource(t *testing.T) {
	tr := NewTree()
	a, _ := tr.AddInstance(rec("p", "st", "seA", "i1", 1))
	b, _ := tr.AddInstance(rec("p", "st", "seB", "i2", 1))

	if err := tr.MoveInstance(a.Instance, b.Series); err != nil {
		t.Fatalf("MoveInstance: %v", err)
	}
	if tr.Alive(a.Series) {
		t.Error("emptied source series should cascade away")
	}
	if !tr.Alive(b.Study) {
		t.Error("study still holds seB")
	}
}

func TestTree_ReplaceSeries(t *testing.T) {
	tr := NewTree()
	a, _ := tr.AddInstance(rec("p", "st", "seA", "i1", 1))
	b, _ := tr.AddInstance(rec("p", "st", "seB", "i2", 1))
	tr.AddInstance(rec("p", "st", "seC", "i3", 1))

	var replaced []Event
	tr.AddListener(func(ev Event) {
		if ev.Action == ActionReplaced {
			replaced = append(replaced, ev)
		}
	})

	id, err := tr.ReplaceSeries(b.Series, "seB2", map[Tag]any{
		TagSeriesUID:    "seB2",
		TagSeriesNumber: 7,
	})
	if err != nil {
		t.Fatalf("ReplaceSeries: %v", err)
	}
	if len(replaced) != 1 || replaced[0].Node != id || replaced[0].Old != b.Series {
		t.Fatalf("Replaced events = %+v", replaced)
	}
	if tr.Alive(b.Series) {
		t.Error("replaced series should be dead")
	}

	// Position within the study preserved: seA, seB2, seC.
	children := tr.Children(a.Study)
	if len(children) != 3 || children[1] != id {
		t.Errorf("study children = %v, want replacement at slot 1", children)
	}
	// Instances adopted.
	got := tr.InstanceUIDs(id)
	if len(got) != 1 || got[0] != "i2" {
		t.Errorf("instances = %v, want [i2]", got)
	}
	if p, _ := tr.Parent(b.Instance); p != id {
		t.Errorf("instance parent = %d, want %d", p, id)
	}
}

func TestTree_WalkParentFirst(t *testing.T) {
	tr := NewTree()
	out, _ := tr.AddInstance(rec("p", "st", "se", "i1", 1))
	tr.AddInstance(rec("p", "st", "se", "i2", 2))

	var levels []Level
	tr.Walk(out.Patient, func(id NodeID) bool {
		levels = append(levels, tr.Level(id))
		return true
	})
	want := []Level{LevelPatient, LevelStudy, LevelSeries, LevelInstance, LevelInstance}
	if len(levels) != len(want) {
		t.Fatalf("walk = %v, want %v", levels, want)
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Fatalf("walk = %v, want %v", levels, want)
		}
	}

	// Pruning at the series level skips the instances.
	var pruned int
	tr.Walk(out.Patient, func(id NodeID) bool {
		pruned++
		return tr.Level(id) != LevelSeries
	})
	if pruned != 3 {
		t.Errorf("pruned walk visited %d nodes, want 3", pruned)
	}
}

func TestTree_SelectFiresOncePerPatient(t *testing.T) {
	tr := NewTree()
	out, _ := tr.AddInstance(rec("p", "st", "se", "i1", 1))

	fired := 0
	tr.AddListener(func(ev Event) {
		if ev.Action == ActionSelected {
			fired++
		}
	})

	tr.Select(out.Patient)
	tr.Select(out.Patient)
	if fired != 1 {
		t.Errorf("selected events = %d, want 1", fired)
	}
	if tr.Selected() != out.Patient {
		t.Errorf("Selected = %d, want %d", tr.Selected(), out.Patient)
	}

	tr.Remove(out.Patient)
	if tr.Selected() != NoNode {
		t.Error("selection should clear when the patient is removed")
	}
}
