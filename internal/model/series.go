package model

import (
	"fmt"
	"sort"
	"strings"
)

// insertOrdered places an instance into its series sorted by instance
// number. sort.Search finds the first existing child with a strictly
// greater number, so an equal number lands after the last equal entry —
// visual order then matches acquisition order when instance numbers
// collide, a known DICOM irregularity.
func (t *Tree) insertOrdered(series, inst NodeID) int {
	num := t.nodes[inst].attrInt(TagInstanceNumber)
	cs := t.nodes[series].children
	idx := sort.Search(len(cs), func(i int) bool {
		return t.nodes[cs[i]].attrInt(TagInstanceNumber) > num
	})
	cs = append(cs, 0)
	copy(cs[idx+1:], cs[idx:])
	cs[idx] = inst
	t.nodes[series].children = cs
	return idx
}

// ---------------------------------------------------------------------------
// Display comparators. These order the secondary index, not the tree:
// studies sort by date (newest first), series by series number. Instance
// ordering is handled by insertOrdered above. Each is a strategy chosen by
// level rather than behavior attached to a node type.
// ---------------------------------------------------------------------------

// ComparePatients orders patients by display name, then patient ID.
func (t *Tree) ComparePatients(a, b NodeID) int {
	if c := strings.Compare(t.AttrString(a, TagPatientName), t.AttrString(b, TagPatientName)); c != 0 {
		return c
	}
	return strings.Compare(t.Key(a), t.Key(b))
}

// CompareStudies orders studies newest-first by study date, ties broken by
// UID for determinism.
func (t *Tree) CompareStudies(a, b NodeID) int {
	da, db := t.nodes[a].attrTime(TagStudyDate), t.nodes[b].attrTime(TagStudyDate)
	switch {
	case da.After(db):
		return -1
	case db.After(da):
		return 1
	}
	return strings.Compare(t.Key(a), t.Key(b))
}

// CompareSeries orders series by series number ascending, ties broken by
// identity key.
func (t *Tree) CompareSeries(a, b NodeID) int {
	na, nb := t.AttrInt(a, TagSeriesNumber), t.AttrInt(b, TagSeriesNumber)
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	}
	return strings.Compare(t.Key(a), t.Key(b))
}

// SeriesLabel renders the display number of a series: the series number,
// suffixed with the split ordinal when the broadcast UID is shared by two
// or more live fragments in the study.
func (t *Tree) SeriesLabel(series NodeID) string {
	if !t.valid(series) || t.nodes[series].level != LevelSeries {
		return ""
	}
	label := fmt.Sprintf("%d", t.nodes[series].attrInt(TagSeriesNumber))
	ord := t.nodes[series].splitOrdinal
	if ord > 0 && t.groupSize(series) > 1 {
		label = fmt.Sprintf("%s-%d", label, ord)
	}
	return label
}

// SplitOrdinal returns the series' 1-based split ordinal, 0 when the
// series is not part of a split group.
func (t *Tree) SplitOrdinal(series NodeID) int {
	if !t.valid(series) {
		return 0
	}
	return t.nodes[series].splitOrdinal
}
