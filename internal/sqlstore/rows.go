package sqlstore

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/velmie/sqloutbox"
)

// Row is one outbox row as stored.
type Row struct {
	ID      int64
	Headers string
	Body    []byte
}

// RowScanner is satisfied by *sql.Rows and pgx.Rows.
type RowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// CollectRows scans (Id, Headers, Body) tuples until rows is exhausted.
// The caller closes rows.
func CollectRows(rows RowScanner, sizeHint int) ([]Row, error) {
	out := make([]Row, 0, sizeHint)
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.Headers, &row.Body); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows failed: %w", err)
	}

	return out, nil
}

// SortRows orders rows by Id according to order.
func SortRows(rows []Row, order outbox.Order) {
	slices.SortFunc(rows, func(a, b Row) int {
		if order == outbox.OrderNewestFirst {
			return cmp.Compare(b.ID, a.ID)
		}

		return cmp.Compare(a.ID, b.ID)
	})
}

// Messages sorts rows and decodes them into messages.
func Messages(rows []Row, order outbox.Order) ([]outbox.Message, error) {
	SortRows(rows, order)

	out := make([]outbox.Message, 0, len(rows))
	for _, row := range rows {
		headers, err := outbox.DecodeHeaders(row.Headers)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row.ID, err)
		}
		body := row.Body
		if body == nil {
			body = []byte{}
		}
		out = append(out, outbox.Message{Headers: headers, Body: body})
	}

	return out, nil
}

// IDs returns the row ids in slice order.
func IDs(rows []Row) []int64 {
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	return ids
}

// Chunks splits items into consecutive slices of at most size elements.
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) <= size {
		if len(items) == 0 {
			return nil
		}

		return [][]T{items}
	}

	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}

	return out
}
