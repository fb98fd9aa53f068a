// Package index maintains the display ordering layered over the ownership
// tree: patients sorted by name, each patient's studies newest first, each
// study's series by series number. The tree stores children in arrival
// order (instances excepted); this view owns presentation order and patient
// focus, and is rebuilt purely from tree notifications.
package index

import (
	"log"
	"sort"

	"github.com/cairnmed/lucent/internal/model"
)

// Positions reports where a notification placed nodes in the display
// lists. -1 means the level was already present (or untouched).
type Positions struct {
	Patient int
	Study   int
	Series  int
}

// View is the secondary index. Like the tree it is confined to the model
// goroutine: it mutates only while handling a synchronously delivered
// notification, so no locking is needed.
type View struct {
	tree *model.Tree

	patients []model.NodeID
	studies  map[model.NodeID][]model.NodeID
	series   map[model.NodeID][]model.NodeID
}

// New builds an empty view and subscribes it to the tree.
func New(t *model.Tree) *View {
	v := &View{
		tree:    t,
		studies: make(map[model.NodeID][]model.NodeID),
		series:  make(map[model.NodeID][]model.NodeID),
	}
	t.AddListener(v.HandleEvent)
	return v
}

// Patients returns the display-ordered patient list.
func (v *View) Patients() []model.NodeID {
	return append([]model.NodeID(nil), v.patients...)
}

// Studies returns a patient's studies, newest first.
func (v *View) Studies(patient model.NodeID) []model.NodeID {
	return append([]model.NodeID(nil), v.studies[patient]...)
}

// Series returns a study's series ordered by series number.
func (v *View) Series(study model.NodeID) []model.NodeID {
	return append([]model.NodeID(nil), v.series[study]...)
}

// HandleEvent keeps the view synchronized with the tree. It is registered
// as a tree listener by New and tolerates notifications for nodes it has
// never seen.
func (v *View) HandleEvent(ev model.Event) {
	switch ev.Action {
	case model.ActionAdded:
		v.OnAdd(ev.Level, ev.Node)
	case model.ActionRemoved:
		v.onRemove(ev.Level, ev.Node)
	case model.ActionReplaced:
		v.onReplace(ev.Old, ev.Node)
	}
}

// OnAdd slots a new node into its sorted display list and reports the
// position used, so callers can skip view work for insertions outside the
// focused patient or study. The first patient ever added becomes the
// focused patient.
func (v *View) OnAdd(level model.Level, id model.NodeID) Positions {
	pos := Positions{Patient: -1, Study: -1, Series: -1}
	switch level {
	case model.LevelPatient:
		pos.Patient = insertSorted(&v.patients, id, v.tree.ComparePatients)
		if len(v.patients) == 1 {
			v.tree.Select(id)
		}
	case model.LevelStudy:
		patient, ok := v.tree.Parent(id)
		if !ok {
			log.Printf("index: study %d has no parent, skipping", id)
			return pos
		}
		list := v.studies[patient]
		pos.Study = insertSorted(&list, id, v.tree.CompareStudies)
		v.studies[patient] = list
	case model.LevelSeries:
		study, ok := v.tree.Parent(id)
		if !ok {
			log.Printf("index: series %d has no parent, skipping", id)
			return pos
		}
		list := v.series[study]
		pos.Series = insertSorted(&list, id, v.tree.CompareSeries)
		v.series[study] = list
	}
	return pos
}

// onRemove drops a node from its display list. A node the view never
// indexed is logged and ignored rather than treated as corruption: removal
// events can outrun a partially rebuilt view.
func (v *View) onRemove(level model.Level, id model.NodeID) {
	switch level {
	case model.LevelPatient:
		if !removeID(&v.patients, id) {
			log.Printf("index: removed patient %d was not indexed", id)
		}
		delete(v.studies, id)
		// Focus moves to the first remaining patient.
		if v.tree.Selected() == model.NoNode && len(v.patients) > 0 {
			v.tree.Select(v.patients[0])
		}
	case model.LevelStudy:
		if !removeFromMap(v.studies, id) {
			log.Printf("index: removed study %d was not indexed", id)
		}
		delete(v.series, id)
	case model.LevelSeries:
		if !removeFromMap(v.series, id) {
			log.Printf("index: removed series %d was not indexed", id)
		}
	}
}

// onReplace swaps a series identity in place, keeping display position.
func (v *View) onReplace(old, id model.NodeID) {
	for study, list := range v.series {
		for i, s := range list {
			if s == old {
				list[i] = id
				v.series[study] = list
				return
			}
		}
	}
	// Replacement for a series the view never saw: index it fresh.
	v.OnAdd(model.LevelSeries, id)
}

// Rebuild discards the view and reindexes every live node from the tree.
func (v *View) Rebuild() {
	v.patients = nil
	v.studies = make(map[model.NodeID][]model.NodeID)
	v.series = make(map[model.NodeID][]model.NodeID)
	for _, p := range v.tree.Patients() {
		insertSorted(&v.patients, p, v.tree.ComparePatients)
		for _, st := range v.tree.Children(p) {
			list := v.studies[p]
			insertSorted(&list, st, v.tree.CompareStudies)
			v.studies[p] = list
			for _, se := range v.tree.Children(st) {
				slist := v.series[st]
				insertSorted(&slist, se, v.tree.CompareSeries)
				v.series[st] = slist
			}
		}
	}
	if v.tree.Selected() == model.NoNode && len(v.patients) > 0 {
		v.tree.Select(v.patients[0])
	}
}

// insertSorted places id into list at its comparator position, after any
// equal entries, and returns the index used.
func insertSorted(list *[]model.NodeID, id model.NodeID, cmp func(a, b model.NodeID) int) int {
	ls := *list
	i := sort.Search(len(ls), func(k int) bool { return cmp(ls[k], id) > 0 })
	ls = append(ls, 0)
	copy(ls[i+1:], ls[i:])
	ls[i] = id
	*list = ls
	return i
}

func removeID(list *[]model.NodeID, id model.NodeID) bool {
	ls := *list
	for i, n := range ls {
		if n == id {
			*list = append(ls[:i], ls[i+1:]...)
			return true
		}
	}
	return false
}

func removeFromMap(m map[model.NodeID][]model.NodeID, id model.NodeID) bool {
	for parent, list := range m {
		if removeID(&list, id) {
			if len(list) == 0 {
				delete(m, parent)
			} else {
				m[parent] = list
			}
			return true
		}
	}
	return false
}
