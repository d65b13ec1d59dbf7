package database

import "fmt"

// Rows is an abstraction over a driver result set. pgx rows satisfy it
// through a thin wrapper; database/sql rows through FromSQLRows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Close()
	Err() error
}

// ScanRows reads all rows from the result set and returns them as maps
// keyed by column name, along with the column names in result order.
//
// The returned slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows, callers do not need to call Close().
func ScanRows(rows Rows) ([]map[string]any, []string, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read column names: %w", err)
	}

	result := make([]map[string]any, 0)

	for rows.Next() {
		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(dest[i])
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return result, columns, nil
}

// normalize turns driver byte slices (MySQL text columns arrive as
// []byte) into strings so results serialize as text.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
