package model

// resolveSplit renumbers the split group for one broadcast series UID
// within a study. Fragments are collected through the UID bitmap index in
// creation order (arena IDs are monotonic), which gives the stable
// first-appearance ordering the ordinals are defined over.
//
// Ordinals are 1..N. A group that has never been split keeps ordinal 0;
// once split, a lone surviving fragment is renumbered to 1 (display
// suppresses the suffix when only one group member remains). Every
// ordinal change emits LabelUpdated for the series and for each of its
// instances, so dependent views refresh displayed numbering without any
// identity change. Re-running over unchanged membership emits nothing.
func (t *Tree) resolveSplit(study NodeID, uid string) {
	if uid == "" || !t.valid(study) {
		return
	}
	bm, ok := t.uidIndex[uid]
	if !ok {
		return
	}

	var group []NodeID
	it := bm.Iterator()
	for it.HasNext() {
		id := NodeID(it.Next())
		if !t.valid(id) {
			continue
		}
		if s, ok := t.Ancestor(id, LevelStudy); ok && s == study {
			group = append(group, id)
		}
	}

	if len(group) == 1 && t.nodes[group[0]].splitOrdinal == 0 {
		// Never split; nothing to number.
		return
	}

	for i, id := range group {
		ord := i + 1
		if t.nodes[id].splitOrdinal == ord {
			continue
		}
		t.nodes[id].splitOrdinal = ord
		t.fire(Event{Action: ActionLabelUpdated, Level: LevelSeries, Node: id, Key: t.nodes[id].key})
		for _, inst := range t.nodes[id].children {
			t.fire(Event{Action: ActionLabelUpdated, Level: LevelInstance, Node: inst, Key: t.nodes[inst].key})
		}
	}
}

// ResolveSplit re-runs split-group numbering for a series' broadcast UID.
// Idempotent: unchanged membership yields identical ordinals and no
// events.
func (t *Tree) ResolveSplit(series NodeID) {
	if !t.valid(series) || t.nodes[series].level != LevelSeries {
		return
	}
	study, ok := t.Ancestor(series, LevelStudy)
	if !ok {
		return
	}
	t.resolveSplit(study, t.nodes[series].attrString(TagSeriesUID))
}

// groupSize counts live fragments sharing series' broadcast UID within
// its study.
func (t *Tree) groupSize(series NodeID) int {
	uid := t.nodes[series].attrString(TagSeriesUID)
	bm, ok := t.uidIndex[uid]
	if !ok {
		return 0
	}
	study, sok := t.Ancestor(series, LevelStudy)
	if !sok {
		return 0
	}
	n := 0
	it := bm.Iterator()
	for it.HasNext() {
		id := NodeID(it.Next())
		if !t.valid(id) {
			continue
		}
		if s, ok := t.Ancestor(id, LevelStudy); ok && s == study {
			n++
		}
	}
	return n
}
