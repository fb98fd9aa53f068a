package ingest

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"
)

// LoadCatalog streams instance records out of a SQLite catalog. Each row
// of the instances table holds one JSON record; only one parsed record is
// alive at a time, keeping memory usage constant.
func LoadCatalog(dbPath string, sink Sink) (int, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open catalog %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.Query("SELECT id, record FROM instances")
	if err != nil {
		return 0, fmt.Errorf("query instances: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	n := 0
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return n, fmt.Errorf("scan row: %w", err)
		}
		parsed, err := oj.ParseString(raw)
		if err != nil {
			log.Printf("ingest: catalog row %s: bad json, skipping: %v", id, err)
			continue
		}
		m, ok := parsed.(map[string]any)
		if !ok {
			log.Printf("ingest: catalog row %s is not an object, skipping", id)
			continue
		}
		if err := sink.Report(recordFromEntry(m)); err != nil {
			return n, fmt.Errorf("report row %s: %w", id, err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate rows: %w", err)
	}
	return n, nil
}
