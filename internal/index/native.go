package index

import (
	"database/sql"
	"fmt"
)

// Native is a secondary index delegated to the backing SQL engine via a
// generated column extracted with json_extract, rather than mirrored in
// process memory. It trades Memory's zero-latency lookups for one that
// survives process restarts and scales past what fits in RAM.
type Native struct {
	db         *sql.DB
	table      string
	column     string // generated column name
	jsonPath   string // e.g. "$.status"
	sourceCol  string // column holding the JSON document, usually "payload_blob"
	unique     bool
	name       string
}

// NewNative describes (but does not yet create) a native index on
// table.sourceCol's JSON path jsonPath, materialized into column.
func NewNative(db *sql.DB, table, sourceCol, column, jsonPath string, unique bool) *Native {
	return &Native{
		db:        db,
		table:     table,
		column:    column,
		jsonPath:  jsonPath,
		sourceCol: sourceCol,
		unique:    unique,
		name:      fmt.Sprintf("%s.%s", table, column),
	}
}

func (n *Native) Name() string { return n.name }
func (n *Native) Unique() bool { return n.unique }

// CreateInDatabase adds the generated column and its index to the
// table. The index is created with IF NOT EXISTS, but the column is
// added unconditionally, so a second call on the same table fails.
func (n *Native) CreateInDatabase() error {
	alter := fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s TEXT GENERATED ALWAYS AS (json_extract(%s, '%s')) VIRTUAL`,
		n.table, n.column, n.sourceCol, n.jsonPath,
	)
	if _, err := n.db.Exec(alter); err != nil {
		return fmt.Errorf("acorndb: create native index column: %w", err)
	}

	uniqueClause := ""
	if n.unique {
		uniqueClause = "UNIQUE "
	}
	idxName := fmt.Sprintf("idx_%s_%s", n.table, n.column)
	create := fmt.Sprintf(`CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)`, uniqueClause, idxName, n.table, n.column)
	if _, err := n.db.Exec(create); err != nil {
		return fmt.Errorf("acorndb: create native index: %w", err)
	}
	return nil
}

// DropFromDatabase removes the index (but leaves the generated column
// in place, since SQLite cannot drop a single column without a table
// rebuild).
func (n *Native) DropFromDatabase() error {
	idxName := fmt.Sprintf("idx_%s_%s", n.table, n.column)
	if _, err := n.db.Exec(fmt.Sprintf(`DROP INDEX IF EXISTS %s`, idxName)); err != nil {
		return fmt.Errorf("acorndb: drop native index: %w", err)
	}
	return nil
}

// VerifyInDatabase confirms the index still exists in sqlite_master,
// returning a non-nil error if it has been dropped out from under the
// caller.
func (n *Native) VerifyInDatabase() error {
	idxName := fmt.Sprintf("idx_%s_%s", n.table, n.column)
	row := n.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, idxName)
	var got string
	if err := row.Scan(&got); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("acorndb: native index %s does not exist", idxName)
		}
		return fmt.Errorf("acorndb: verify native index: %w", err)
	}
	return nil
}

// Lookup returns every id whose extracted value equals value.
func (n *Native) Lookup(idColumn, value string) ([]string, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`, idColumn, n.table, n.column)
	rows, err := n.db.Query(q, value)
	if err != nil {
		return nil, fmt.Errorf("acorndb: native index lookup: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("acorndb: scan native index row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Range returns every id whose extracted value falls within [min, max]
// under SQLite's default text/numeric comparison rules.
func (n *Native) Range(idColumn, min, max string) ([]string, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s BETWEEN ? AND ?`, idColumn, n.table, n.column)
	rows, err := n.db.Query(q, min, max)
	if err != nil {
		return nil, fmt.Errorf("acorndb: native index range: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("acorndb: scan native index row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
