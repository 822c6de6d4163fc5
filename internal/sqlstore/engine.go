package sqlstore

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/velmie/sqloutbox"
)

// DefaultChunkSize is the number of rows written by one INSERT statement.
const DefaultChunkSize = 1000

// Dialect carries the statements a backend runs against its table.
// Exactly one of Dequeue or Lock is set.
type Dialect struct {
	// Name prefixes error messages, e.g. "outbox mysql".
	Name        string
	Placeholder sq.PlaceholderFormat
	// Dequeue removes and returns up to $1 rows (Id, Headers, Body) in one statement.
	Dequeue string
	// Lock selects and row-locks up to $1 rows (Id, Headers, Body); the rows are
	// then removed with a DELETE by id in the same transaction.
	Lock   string
	Count  string
	Clear  string
	Schema []string
	// MaxChunkSize caps the rows per INSERT; zero means no cap.
	MaxChunkSize int
}

// Statement is a rendered SQL statement with its arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Engine runs the outbox operations for one table.
type Engine struct {
	table     TableName
	order     outbox.Order
	chunkSize int
	dialect   Dialect
	insert    sq.InsertBuilder
	remove    sq.DeleteBuilder
}

// New builds an Engine. A non-positive chunkSize selects DefaultChunkSize.
func New(table TableName, order outbox.Order, chunkSize int, dialect Dialect) *Engine {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if dialect.MaxChunkSize > 0 && chunkSize > dialect.MaxChunkSize {
		chunkSize = dialect.MaxChunkSize
	}

	return &Engine{
		table:     table,
		order:     order,
		chunkSize: chunkSize,
		dialect:   dialect,
		insert: sq.Insert(table.String()).
			Columns("Headers", "Body").
			PlaceholderFormat(dialect.Placeholder),
		remove: sq.Delete(table.String()).PlaceholderFormat(dialect.Placeholder),
	}
}

// Table returns the validated table name.
func (e *Engine) Table() TableName {
	return e.table
}

// Order returns the dequeue order.
func (e *Engine) Order() outbox.Order {
	return e.order
}

// ChunkSize returns the effective rows per INSERT.
func (e *Engine) ChunkSize() int {
	return e.chunkSize
}

// Dialect returns the statements used by the engine.
func (e *Engine) Dialect() Dialect {
	return e.dialect
}

// Inserts renders one multi-row INSERT per chunk of messages.
func (e *Engine) Inserts(messages []outbox.Message) ([]Statement, error) {
	chunks := Chunks(messages, e.chunkSize)
	out := make([]Statement, 0, len(chunks))
	for _, chunk := range chunks {
		builder := e.insert
		for i := range chunk {
			headers, err := outbox.EncodeHeaders(chunk[i].Headers)
			if err != nil {
				return nil, err
			}
			body := chunk[i].Body
			if body == nil {
				body = []byte{}
			}
			builder = builder.Values(headers, body)
		}

		query, args, err := builder.ToSql()
		if err != nil {
			return nil, fmt.Errorf("%s: build insert failed: %w", e.dialect.Name, err)
		}
		out = append(out, Statement{SQL: query, Args: args})
	}

	return out, nil
}

// DeleteByID renders the DELETE used after Lock.
func (e *Engine) DeleteByID(ids []int64) (Statement, error) {
	query, args, err := e.remove.Where(sq.Eq{"Id": ids}).ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("%s: build delete failed: %w", e.dialect.Name, err)
	}

	return Statement{SQL: query, Args: args}, nil
}

// Send inserts messages chunk by chunk through q.
func (e *Engine) Send(ctx context.Context, q outbox.Querier, messages []outbox.Message) error {
	if len(messages) == 0 {
		return nil
	}

	statements, err := e.Inserts(messages)
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := q.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
			return fmt.Errorf("%s: insert failed: %w", e.dialect.Name, err)
		}
	}

	return nil
}

// PeekLock removes up to maxCount rows through q and returns them in dequeue order.
func (e *Engine) PeekLock(ctx context.Context, q outbox.Querier, maxCount int) ([]outbox.Message, error) {
	if maxCount <= 0 {
		return nil, outbox.ErrInvalidBatchSize
	}

	query := e.dialect.Dequeue
	if query == "" {
		query = e.dialect.Lock
	}

	rows, err := e.query(ctx, q, query, maxCount)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []outbox.Message{}, nil
	}

	if e.dialect.Dequeue == "" {
		for _, ids := range Chunks(IDs(rows), e.chunkSize) {
			stmt, err := e.DeleteByID(ids)
			if err != nil {
				return nil, err
			}
			if _, err := q.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
				return nil, fmt.Errorf("%s: delete failed: %w", e.dialect.Name, err)
			}
		}
	}

	messages, err := Messages(rows, e.order)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.dialect.Name, err)
	}

	return messages, nil
}

func (e *Engine) query(ctx context.Context, q outbox.Querier, query string, maxCount int) ([]Row, error) {
	rows, err := q.QueryContext(ctx, query, maxCount)
	if err != nil {
		return nil, fmt.Errorf("%s: dequeue failed: %w", e.dialect.Name, err)
	}
	defer rows.Close()

	out, err := CollectRows(rows, min(maxCount, DefaultChunkSize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.dialect.Name, err)
	}

	return out, nil
}

// Count returns the number of rows visible to q.
func (e *Engine) Count(ctx context.Context, q outbox.Querier) (int, error) {
	var count int
	if err := q.QueryRowContext(ctx, e.dialect.Count).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: count failed: %w", e.dialect.Name, err)
	}

	return count, nil
}

// Clear deletes every row through q.
func (e *Engine) Clear(ctx context.Context, q outbox.Querier) error {
	if _, err := q.ExecContext(ctx, e.dialect.Clear); err != nil {
		return fmt.Errorf("%s: clear failed: %w", e.dialect.Name, err)
	}

	return nil
}

// EnsureTable runs the schema statements in order.
func (e *Engine) EnsureTable(ctx context.Context, q outbox.Querier) error {
	for _, stmt := range e.dialect.Schema {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: ensure table failed: %w", e.dialect.Name, err)
		}
	}

	return nil
}
