package store

import (
	"context"
	"fmt"
	"time"
)

// QueryResult is the outcome of a raw statement run by the SQL tool.
type QueryResult struct {
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	Truncated    bool     `json:"truncated,omitempty"`
	RowsAffected int64    `json:"rowsAffected,omitempty"`
}

// Query runs a read statement and returns at most maxRows rows, whatever the
// statement's own LIMIT says.
func (s *Store) Query(ctx context.Context, stmt string, maxRows int) (*QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if maxRows > 0 && len(res.Rows) >= maxRows {
			res.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		res.Rows = append(res.Rows, values)
	}
	return res, rows.Err()
}

// Exec runs a write statement and reports the affected row count.
func (s *Store) Exec(ctx context.Context, stmt string) (*QueryResult, error) {
	r, err := s.db.ExecContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	n, err := r.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	return &QueryResult{RowsAffected: n}, nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return t
	}
}
