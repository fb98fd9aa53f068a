// Package ingest turns external metadata sources into instance records and
// funnels them into the model. Loaders run on arbitrary goroutines; the
// model sink serializes everything through the mutation queue.
package ingest

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/cairnmed/lucent/api"
	"github.com/cairnmed/lucent/internal/model"
)

// ErrUnknownFormat reports a source path with no registered loader.
var ErrUnknownFormat = errors.New("unknown source format")

// Sink receives one record per discovered instance.
type Sink interface {
	Report(api.InstanceRecord) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(api.InstanceRecord) error

func (f SinkFunc) Report(rec api.InstanceRecord) error { return f(rec) }

// ModelSink funnels records into the tree through the mutation queue, so
// loaders never touch the tree from their own goroutines. Rejected records
// (duplicates, missing identity) are logged and skipped.
type ModelSink struct {
	Queue *model.Queue
	Tree  *model.Tree
}

func (s *ModelSink) Report(rec api.InstanceRecord) error {
	s.Queue.Post(func() {
		if _, err := s.Tree.AddInstance(rec); err != nil {
			log.Printf("ingest: drop %s: %v", rec.SOPInstanceUID, err)
		}
	})
	return nil
}

// Flush blocks until every record posted so far has been applied.
func (s *ModelSink) Flush() { s.Queue.Sync(func() {}) }

// Engine dispatches sources to format loaders. Manifests are read through
// the billy filesystem; SQLite catalogs go through database/sql, which
// needs a host path, so they bypass fs.
type Engine struct {
	fs billy.Filesystem
}

func NewEngine(fs billy.Filesystem) *Engine {
	return &Engine{fs: fs}
}

// Load ingests one source, returning the number of records reported.
func (e *Engine) Load(path string, sink Sink) (int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return e.LoadManifest(path, sink)
	case ".db", ".sqlite", ".sqlite3":
		return LoadCatalog(path, sink)
	default:
		return 0, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
}
