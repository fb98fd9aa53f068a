package model

import "time"

// Level identifies a node's position in the patient → study → series →
// instance hierarchy. Tree operations switch on it instead of using
// per-level types.
type Level uint8

const (
	LevelRoot Level = iota
	LevelPatient
	LevelStudy
	LevelSeries
	LevelInstance
)

func (l Level) String() string {
	switch l {
	case LevelRoot:
		return "root"
	case LevelPatient:
		return "patient"
	case LevelStudy:
		return "study"
	case LevelSeries:
		return "series"
	case LevelInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// Tag is an attribute key. Keys are unique per node; insertion order is
// irrelevant.
type Tag string

const (
	TagPatientID         Tag = "PatientID"
	TagPatientName       Tag = "PatientName"
	TagStudyUID          Tag = "StudyInstanceUID"
	TagStudyDate         Tag = "StudyDate"
	TagStudyDescription  Tag = "StudyDescription"
	TagSeriesUID         Tag = "SeriesInstanceUID"
	TagSeriesNumber      Tag = "SeriesNumber"
	TagSeriesDescription Tag = "SeriesDescription"
	TagModality          Tag = "Modality"
	TagSOPInstanceUID    Tag = "SOPInstanceUID"
	TagInstanceNumber    Tag = "InstanceNumber"
	TagRows              Tag = "Rows"
	TagColumns           Tag = "Columns"
	TagBitsAllocated     Tag = "BitsAllocated"
	TagSamplesPerPixel   Tag = "SamplesPerPixel"
)

// NodeID is an index into the tree-owned arena. The zero value addresses
// the synthetic root; freed slots are tombstoned and IDs are never reused,
// so a stale NodeID can be detected but never resolves to a new node.
type NodeID uint32

// NoNode marks an absent node reference.
const NoNode NodeID = ^NodeID(0)

// node is one arena slot. Children are ordered NodeIDs owned by the
// parent; parent is a back-reference used for lookup only.
type node struct {
	key      string // level-specific identity (subseries UID for series)
	level    Level
	attrs    map[Tag]any
	children []NodeID
	parent   NodeID
	live     bool

	// Series only: 1-based split ordinal, 0 when not part of a named
	// split group. Instance identity set for duplicate detection.
	splitOrdinal int
	sopSet       map[string]struct{}
}

func (n *node) attrString(t Tag) string {
	if v, ok := n.attrs[t].(string); ok {
		return v
	}
	return ""
}

func (n *node) attrInt(t Tag) int {
	if v, ok := n.attrs[t].(int); ok {
		return v
	}
	return 0
}

func (n *node) attrTime(t Tag) time.Time {
	if v, ok := n.attrs[t].(time.Time); ok {
		return v
	}
	return time.Time{}
}
