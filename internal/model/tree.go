package model

import (
	"errors"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/cairnmed/lucent/api"
)

var (
	// ErrDuplicateInstance reports an instance whose SOP UID is already
	// present in the target series. The tree is left untouched.
	ErrDuplicateInstance = errors.New("duplicate instance")

	// ErrMissingIdentity reports a record without the identity keys needed
	// to place it in the hierarchy.
	ErrMissingIdentity = errors.New("missing identity key")

	// ErrNotFound reports a NodeID that does not resolve to a live node.
	ErrNotFound = errors.New("node not found")
)

// Tree is the canonical ownership hierarchy. All nodes live in a single
// arena slice; children reference each other by arena index, so the tree
// is the sole owner and back-references can never dangle into freed
// memory. Mutation is single-writer: every structural change must happen
// on the model goroutine (see Queue), and notifications are delivered
// synchronously from there.
type Tree struct {
	nodes     []node
	listeners []Listener

	// seriesUID → bitmap of series NodeIDs sharing that broadcast UID.
	// Drives O(k) split-group collection instead of a study-wide scan.
	uidIndex map[string]*roaring.Bitmap

	selected NodeID
}

// NewTree returns an empty tree with a synthetic root at NodeID 0.
func NewTree() *Tree {
	return &Tree{
		nodes:    []node{{level: LevelRoot, parent: NoNode, live: true}},
		uidIndex: make(map[string]*roaring.Bitmap),
		selected: NoNode,
	}
}

// InsertionOutcome reports what AddInstance did.
type InsertionOutcome struct {
	Instance NodeID
	Index    int // sorted position within the series, -1 when superseded
	Series   NodeID
	Study    NodeID
	Patient  NodeID

	CreatedSeries  bool
	CreatedStudy   bool
	CreatedPatient bool

	// Superseded means the fragment carried a supersession marker and was
	// removed instead of displayed.
	Superseded bool
}

// AddInstance places one reported instance into the hierarchy, creating
// patient, study and series nodes lazily. Instances within a series are
// kept ordered by instance number, equal numbers appended after existing
// ones. A duplicate SOP UID is rejected and leaves the tree untouched.
func (t *Tree) AddInstance(rec api.InstanceRecord) (InsertionOutcome, error) {
	var out InsertionOutcome
	if rec.PatientID == "" || rec.StudyUID == "" || rec.SeriesUID == "" || rec.SOPInstanceUID == "" {
		return out, ErrMissingIdentity
	}

	patient, ok := t.childByKey(0, rec.PatientID)
	if ok {
		study, sok := t.childByKey(patient, rec.StudyUID)
		if sok {
			series, seok := t.childByKey(study, rec.GroupUID())
			if seok {
				if _, dup := t.nodes[series].sopSet[rec.SOPInstanceUID]; dup {
					return out, ErrDuplicateInstance
				}
			}
		}
	}

	if !ok {
		patient = t.newNode(0, LevelPatient, rec.PatientID, map[Tag]any{
			TagPatientID:   rec.PatientID,
			TagPatientName: rec.PatientName,
		})
		out.CreatedPatient = true
	}
	out.Patient = patient

	study, ok := t.childByKey(patient, rec.StudyUID)
	if !ok {
		study = t.newNode(patient, LevelStudy, rec.StudyUID, map[Tag]any{
			TagStudyUID:         rec.StudyUID,
			TagStudyDate:        rec.StudyDate,
			TagStudyDescription: rec.StudyDescription,
		})
		out.CreatedStudy = true
	}
	out.Study = study

	series, ok := t.childByKey(study, rec.GroupUID())
	if !ok {
		series = t.newNode(study, LevelSeries, rec.GroupUID(), map[Tag]any{
			TagSeriesUID:         rec.SeriesUID,
			TagSeriesNumber:      rec.SeriesNumber,
			TagSeriesDescription: rec.SeriesDescription,
			TagModality:          rec.Modality,
		})
		t.nodes[series].sopSet = make(map[string]struct{})
		t.indexSeries(rec.SeriesUID, series)
		out.CreatedSeries = true
	}
	out.Series = series

	inst := t.newNode(series, LevelInstance, rec.SOPInstanceUID, map[Tag]any{
		TagSOPInstanceUID:  rec.SOPInstanceUID,
		TagInstanceNumber:  rec.InstanceNumber,
		TagRows:            rec.Rows,
		TagColumns:         rec.Columns,
		TagBitsAllocated:   rec.BitsAllocated,
		TagSamplesPerPixel: rec.SamplesPerPixel,
	})
	out.Instance = inst
	out.Index = t.insertOrdered(series, inst)
	t.nodes[series].sopSet[rec.SOPInstanceUID] = struct{}{}

	if out.CreatedPatient {
		t.fire(Event{Action: ActionAdded, Level: LevelPatient, Node: patient, Key: rec.PatientID})
	}
	if out.CreatedStudy {
		t.fire(Event{Action: ActionAdded, Level: LevelStudy, Node: study, Key: rec.StudyUID})
	}
	if out.CreatedSeries {
		t.fire(Event{Action: ActionAdded, Level: LevelSeries, Node: series, Key: rec.GroupUID()})
	}
	t.fire(Event{Action: ActionAdded, Level: LevelInstance, Node: inst, Key: rec.SOPInstanceUID})

	if rec.Superseded {
		// The fragment's grouping has been superseded: drop it instead of
		// displaying it, then renumber whatever remains of the group.
		out.Superseded = true
		out.Index = -1
		t.Remove(series)
		return out, nil
	}

	t.resolveSplit(study, rec.SeriesUID)
	return out, nil
}

// RemovedSubtree lists the nodes a Remove call destroyed, in event order
// (child-first).
type RemovedSubtree struct {
	Nodes []NodeID
}

// Remove destroys a node and its whole subtree, then cascades upward:
// a parent left childless is removed as well, recursively. One Removed
// event fires per node, children before parents.
func (t *Tree) Remove(id NodeID) RemovedSubtree {
	var out RemovedSubtree
	if !t.valid(id) || id == 0 {
		return out
	}

	parent := t.nodes[id].parent
	var uids []string
	t.removeSubtree(id, &out, &uids)
	t.detach(parent, id)

	// Cascade: remove ancestors emptied by this removal.
	for parent != 0 && parent != NoNode && len(t.nodes[parent].children) == 0 {
		next := t.nodes[parent].parent
		t.removeSubtree(parent, &out, &uids)
		t.detach(next, parent)
		parent = next
	}

	// Renumber split groups the removal touched.
	for _, uid := range dedupe(uids) {
		if study, ok := t.anyStudyForUID(uid); ok {
			t.resolveSplit(study, uid)
		}
	}
	return out
}

// removeSubtree tombstones id's subtree post-order, firing Removed events
// child-first and unwinding the UID index.
func (t *Tree) removeSubtree(id NodeID, out *RemovedSubtree, uids *[]string) {
	n := &t.nodes[id]
	for _, c := range append([]NodeID(nil), n.children...) {
		t.removeSubtree(c, out, uids)
	}
	n.children = nil
	if n.level == LevelSeries {
		uid := n.attrString(TagSeriesUID)
		t.unindexSeries(uid, id)
		*uids = append(*uids, uid)
	}
	n.live = false
	if id == t.selected {
		t.selected = NoNode
	}
	out.Nodes = append(out.Nodes, id)
	t.fire(Event{Action: ActionRemoved, Level: n.level, Node: id, Key: n.key})
}

// ReplaceSeries substitutes a series node with a fresh one carrying a new
// identity and attributes, keeping the old node's position and adopting
// its instances. Used when a loaded fragment supersedes an earlier
// representation of the same data (e.g. a reclassified series). Emits a
// single Replaced event naming both nodes.
func (t *Tree) ReplaceSeries(old NodeID, key string, attrs map[Tag]any) (NodeID, error) {
	if !t.valid(old) || t.nodes[old].level != LevelSeries {
		return NoNode, ErrNotFound
	}
	parent := t.nodes[old].parent

	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{
		key:      key,
		level:    LevelSeries,
		attrs:    attrs,
		parent:   parent,
		live:     true,
		children: t.nodes[old].children,
		sopSet:   t.nodes[old].sopSet,
	})
	for _, c := range t.nodes[id].children {
		t.nodes[c].parent = id
	}

	// Swap in place so display position is preserved.
	cs := t.nodes[parent].children
	for i, c := range cs {
		if c == old {
			cs[i] = id
			break
		}
	}

	t.unindexSeries(t.nodes[old].attrString(TagSeriesUID), old)
	t.nodes[old].children = nil
	t.nodes[old].sopSet = nil
	t.nodes[old].live = false
	t.indexSeries(t.nodes[id].attrString(TagSeriesUID), id)

	t.fire(Event{Action: ActionReplaced, Level: LevelSeries, Node: id, Key: key, Old: old})

	if study, ok := t.Ancestor(id, LevelStudy); ok {
		if uid := t.nodes[id].attrString(TagSeriesUID); uid != "" {
			t.resolveSplit(study, uid)
		}
	}
	return id, nil
}

// MoveInstance reparents an instance into another series of the same
// study, preserving sorted order in the target. Emits a ParentUpdated
// event for the instance.
func (t *Tree) MoveInstance(inst, toSeries NodeID) error {
	if !t.valid(inst) || !t.valid(toSeries) {
		return ErrNotFound
	}
	if t.nodes[inst].level != LevelInstance || t.nodes[toSeries].level != LevelSeries {
		return ErrNotFound
	}
	sop := t.nodes[inst].key
	if _, dup := t.nodes[toSeries].sopSet[sop]; dup {
		return ErrDuplicateInstance
	}

	from := t.nodes[inst].parent
	t.detach(from, inst)
	delete(t.nodes[from].sopSet, sop)
	t.nodes[inst].parent = toSeries
	t.insertOrdered(toSeries, inst)
	t.nodes[toSeries].sopSet[sop] = struct{}{}
	t.fire(Event{Action: ActionParentUpdated, Level: LevelInstance, Node: inst, Key: sop, Old: from})

	// An emptied source series cascades away like any other removal.
	if len(t.nodes[from].children) == 0 {
		t.Remove(from)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Read accessors
// ---------------------------------------------------------------------------

// Parent returns the parent of id, or false for the root or a dead node.
func (t *Tree) Parent(id NodeID) (NodeID, bool) {
	if !t.valid(id) || id == 0 {
		return NoNode, false
	}
	return t.nodes[id].parent, true
}

// Children returns a copy of id's ordered child list.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.valid(id) {
		return nil
	}
	return append([]NodeID(nil), t.nodes[id].children...)
}

// Ancestor walks up from id to the requested level.
func (t *Tree) Ancestor(id NodeID, level Level) (NodeID, bool) {
	for t.valid(id) && id != 0 {
		if t.nodes[id].level == level {
			return id, true
		}
		id = t.nodes[id].parent
	}
	return NoNode, false
}

// Level returns id's hierarchy level.
func (t *Tree) Level(id NodeID) Level {
	if !t.valid(id) {
		return LevelRoot
	}
	return t.nodes[id].level
}

// Key returns id's identity key.
func (t *Tree) Key(id NodeID) string {
	if !t.valid(id) {
		return ""
	}
	return t.nodes[id].key
}

// Alive reports whether id resolves to a live node.
func (t *Tree) Alive(id NodeID) bool { return t.valid(id) }

// Attr returns one typed attribute value, or nil.
func (t *Tree) Attr(id NodeID, tag Tag) any {
	if !t.valid(id) {
		return nil
	}
	return t.nodes[id].attrs[tag]
}

// AttrString returns a string attribute, or "".
func (t *Tree) AttrString(id NodeID, tag Tag) string {
	if !t.valid(id) {
		return ""
	}
	return t.nodes[id].attrString(tag)
}

// AttrInt returns an int attribute, or 0.
func (t *Tree) AttrInt(id NodeID, tag Tag) int {
	if !t.valid(id) {
		return 0
	}
	return t.nodes[id].attrInt(tag)
}

// Patients returns the root's children.
func (t *Tree) Patients() []NodeID { return t.Children(0) }

// Walk visits id's subtree depth-first, parents before children. The
// visitor returning false prunes that node's subtree.
func (t *Tree) Walk(id NodeID, visit func(NodeID) bool) {
	if !t.valid(id) {
		return
	}
	if !visit(id) {
		return
	}
	for _, c := range t.nodes[id].children {
		t.Walk(c, visit)
	}
}

// InstanceUIDs returns the SOP UIDs of a series in display order.
func (t *Tree) InstanceUIDs(series NodeID) []string {
	if !t.valid(series) || t.nodes[series].level != LevelSeries {
		return nil
	}
	uids := make([]string, 0, len(t.nodes[series].children))
	for _, c := range t.nodes[series].children {
		uids = append(uids, t.nodes[c].key)
	}
	return uids
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (t *Tree) valid(id NodeID) bool {
	return int(id) < len(t.nodes) && t.nodes[id].live
}

func (t *Tree) childByKey(parent NodeID, key string) (NodeID, bool) {
	for _, c := range t.nodes[parent].children {
		if t.nodes[c].key == key {
			return c, true
		}
	}
	return NoNode, false
}

// newNode appends an arena slot and links it under parent. Instances are
// position-managed by insertOrdered; every other level appends in arrival
// order (display ordering is the secondary index's concern).
func (t *Tree) newNode(parent NodeID, level Level, key string, attrs map[Tag]any) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{
		key:    key,
		level:  level,
		attrs:  attrs,
		parent: parent,
		live:   true,
	})
	if level != LevelInstance {
		p := &t.nodes[parent]
		p.children = append(p.children, id)
	}
	return id
}

func (t *Tree) detach(parent, child NodeID) {
	if parent == NoNode || !t.valid(parent) {
		return
	}
	cs := t.nodes[parent].children
	for i, c := range cs {
		if c == child {
			t.nodes[parent].children = append(cs[:i], cs[i+1:]...)
			return
		}
	}
}

func (t *Tree) indexSeries(uid string, id NodeID) {
	if uid == "" {
		return
	}
	bm, ok := t.uidIndex[uid]
	if !ok {
		bm = roaring.New()
		t.uidIndex[uid] = bm
	}
	bm.Add(uint32(id))
}

func (t *Tree) unindexSeries(uid string, id NodeID) {
	bm, ok := t.uidIndex[uid]
	if !ok {
		return
	}
	bm.Remove(uint32(id))
	if bm.IsEmpty() {
		delete(t.uidIndex, uid)
	}
}

// anyStudyForUID resolves the study owning some live fragment of uid.
func (t *Tree) anyStudyForUID(uid string) (NodeID, bool) {
	bm, ok := t.uidIndex[uid]
	if !ok {
		return NoNode, false
	}
	it := bm.Iterator()
	for it.HasNext() {
		id := NodeID(it.Next())
		if t.valid(id) {
			return t.Ancestor(id, LevelStudy)
		}
	}
	return NoNode, false
}

func dedupe(ss []string) []string {
	seen := make(map[string]struct{}, len(ss))
	out := ss[:0]
	for _, s := range ss {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// DisplayPath renders a node's ancestry for diagnostics.
func (t *Tree) DisplayPath(id NodeID) string {
	var parts []string
	for t.valid(id) && id != 0 {
		parts = append([]string{t.nodes[id].key}, parts...)
		id = t.nodes[id].parent
	}
	return strings.Join(parts, "/")
}
