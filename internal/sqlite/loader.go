package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// loadAllJSONL reads every store file and engine collection from dataDir
// into SQLite. Loading is transactional: all succeed or the database stays
// empty. Malformed lines and lines that violate a constraint are skipped;
// unknown JSON keys are ignored.
func loadAllJSONL(db *sql.DB, dataDir string, stores []string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, store := range stores {
		records, err := readJSONL(filepath.Join(dataDir, storeJSONL(store)))
		if err != nil {
			return fmt.Errorf("reading store %s: %w", store, err)
		}
		if len(records) == 0 {
			continue
		}
		fixed := map[string]any{"store_name": store}
		if err := insertRecords(tx, "records", recordColumns, recordDefaults, fixed, records); err != nil {
			return fmt.Errorf("loading store %s: %w", store, err)
		}
	}

	for _, m := range collectionMappings {
		records, err := readJSONL(filepath.Join(dataDir, m.file))
		if err != nil {
			return fmt.Errorf("reading %s: %w", m.file, err)
		}
		if len(records) == 0 {
			continue
		}
		if err := insertRecords(tx, m.table, m.columns, m.defaults, nil, records); err != nil {
			return fmt.Errorf("loading %s into %s: %w", m.file, m.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

// insertRecords inserts parsed JSONL records into table. Only the listed
// columns are extracted; nested objects are re-serialized as JSON text.
// fixed supplies columns that are not part of the JSON line, such as the
// owning store name. When a key repeats the unique constraint of the table
// (a record rewritten twice in one file), the later line wins.
func insertRecords(tx *sql.Tx, table string, columns []string, defaults, fixed map[string]any, records []json.RawMessage) error {
	all := make([]string, 0, len(columns)+len(fixed))
	all = append(all, columns...)
	for col := range fixed {
		all = append(all, col)
	}
	placeholders := make([]string, len(all))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(all, ", "),
		strings.Join(placeholders, ", "),
	)

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", table, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var obj map[string]any
		if err := json.Unmarshal(rec, &obj); err != nil {
			continue
		}

		args := make([]any, len(all))
		for i, col := range all {
			if v, ok := fixed[col]; ok {
				args[i] = v
				continue
			}
			val, ok := obj[col]
			if !ok || val == nil {
				args[i] = defaults[col]
				continue
			}
			switch v := val.(type) {
			case map[string]any, []any:
				b, err := json.Marshal(v)
				if err != nil {
					args[i] = defaults[col]
					continue
				}
				args[i] = string(b)
			default:
				args[i] = val
			}
		}

		if _, err := stmt.Exec(args...); err != nil {
			continue
		}
	}
	return nil
}
