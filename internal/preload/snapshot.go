package preload

import (
	"github.com/cairnmed/lucent/internal/model"
	"github.com/cairnmed/lucent/internal/pixel"
)

// SnapshotSeries captures a series' instances for a preload task. The
// snapshot is an independent copy: instances added to or removed from the
// series afterwards are invisible to the task.
func SnapshotSeries(t *model.Tree, series model.NodeID, cursor int) Snapshot {
	children := t.Children(series)
	snap := Snapshot{
		Series:    series,
		SeriesKey: t.Key(series),
		Instances: make([]pixel.InstanceInfo, 0, len(children)),
		Cursor:    cursor,
	}
	for _, inst := range children {
		snap.Instances = append(snap.Instances, pixel.InstanceInfo{
			SOPInstanceUID:  t.Key(inst),
			Rows:            t.AttrInt(inst, model.TagRows),
			Columns:         t.AttrInt(inst, model.TagColumns),
			BitsAllocated:   t.AttrInt(inst, model.TagBitsAllocated),
			SamplesPerPixel: t.AttrInt(inst, model.TagSamplesPerPixel),
		})
	}
	return snap
}
