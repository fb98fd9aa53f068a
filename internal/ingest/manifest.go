package ingest

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/cairnmed/lucent/api"
)

// instancesPath selects manifest entries; a bare top-level array is also
// accepted.
var instancesPath = jp.MustParseString("$.instances[*]")

// LoadManifest ingests a JSON manifest. Malformed entries are logged and
// skipped; a sink error aborts the load.
func (e *Engine) LoadManifest(path string, sink Sink) (int, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open manifest %s: %w", path, err)
	}
	defer func() { _ = f.Close() }() // safe to ignore

	data, err := io.ReadAll(f)
	if err != nil {
		return 0, fmt.Errorf("read manifest %s: %w", path, err)
	}
	root, err := oj.Parse(data)
	if err != nil {
		return 0, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	entries := instancesPath.Get(root)
	if len(entries) == 0 {
		if list, ok := root.([]any); ok {
			entries = list
		}
	}

	n := 0
	for i, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			log.Printf("ingest: manifest %s entry %d is not an object, skipping", path, i)
			continue
		}
		if err := sink.Report(recordFromEntry(m)); err != nil {
			return n, fmt.Errorf("report entry %d: %w", i, err)
		}
		n++
	}
	return n, nil
}

// recordFromEntry maps one parsed JSON object onto a record. Unknown keys
// are ignored; missing keys leave zero values for the model to validate.
func recordFromEntry(m map[string]any) api.InstanceRecord {
	return api.InstanceRecord{
		PatientID:         str(m, "patient_id"),
		PatientName:       str(m, "patient_name"),
		StudyUID:          str(m, "study_uid"),
		StudyDate:         date(m, "study_date"),
		StudyDescription:  str(m, "study_description"),
		SeriesUID:         str(m, "series_uid"),
		SubseriesUID:      str(m, "subseries_uid"),
		SeriesNumber:      num(m, "series_number"),
		Modality:          str(m, "modality"),
		SeriesDescription: str(m, "series_description"),
		SOPInstanceUID:    str(m, "sop_uid"),
		InstanceNumber:    num(m, "instance_number"),
		Rows:              num(m, "rows"),
		Columns:           num(m, "columns"),
		BitsAllocated:     num(m, "bits_allocated"),
		SamplesPerPixel:   num(m, "samples_per_pixel"),
		Superseded:        boolean(m, "superseded"),
	}
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func num(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolean(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func date(m map[string]any, key string) time.Time {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
