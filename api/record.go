package api

import "time"

// InstanceRecord is the metadata a loader reports for one decoded instance.
// It carries everything the model needs to place the instance in the
// patient → study → series hierarchy, plus the pixel geometry used for
// size estimation. Loaders produce these from any goroutine; the model
// applies them on its own mutation queue.
type InstanceRecord struct {
	// Patient level.
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name,omitempty"`

	// Study level.
	StudyUID         string    `json:"study_uid"`
	StudyDate        time.Time `json:"study_date,omitempty"`
	StudyDescription string    `json:"study_description,omitempty"`

	// Series level. SeriesUID is the broadcast series instance UID shared
	// by all fragments of a split series. SubseriesUID is the identity key
	// of one fragment; when empty it defaults to SeriesUID.
	SeriesUID         string `json:"series_uid"`
	SubseriesUID      string `json:"subseries_uid,omitempty"`
	SeriesNumber      int    `json:"series_number,omitempty"`
	Modality          string `json:"modality,omitempty"`
	SeriesDescription string `json:"series_description,omitempty"`

	// Instance level.
	SOPInstanceUID string `json:"sop_uid"`
	InstanceNumber int    `json:"instance_number"`

	// Pixel geometry for decoded-size estimation.
	Rows            int `json:"rows,omitempty"`
	Columns         int `json:"columns,omitempty"`
	BitsAllocated   int `json:"bits_allocated,omitempty"`
	SamplesPerPixel int `json:"samples_per_pixel,omitempty"`

	// Superseded marks a fragment whose prior grouping no longer applies
	// (e.g. a series reclassified mid-stream). The model removes such a
	// fragment instead of displaying it.
	Superseded bool `json:"superseded,omitempty"`
}

// GroupUID returns the fragment identity key: SubseriesUID when set,
// otherwise the broadcast SeriesUID.
func (r *InstanceRecord) GroupUID() string {
	if r.SubseriesUID != "" {
		return r.SubseriesUID
	}
	return r.SeriesUID
}
