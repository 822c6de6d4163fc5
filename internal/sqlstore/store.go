package sqlstore

import (
	"context"
	"errors"

	"github.com/velmie/sqloutbox"
)

const defaultTable = "outbox"

// ErrTxRequired is returned when a storage call receives a nil transaction.
var ErrTxRequired = errors.New("outbox: transaction is required")

// Config defines the table a store works on.
type Config struct {
	Table     string
	Order     outbox.Order
	ChunkSize int
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}

	return c
}

// Option configures a store.
type Option func(*Config)

// WithTable sets the outbox table name, optionally qualified by one schema part.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithOrder sets the dequeue order.
func WithOrder(order outbox.Order) Option {
	return func(c *Config) {
		c.Order = order
	}
}

// WithChunkSize sets the number of rows written by one INSERT.
func WithChunkSize(size int) Option {
	return func(c *Config) {
		c.ChunkSize = size
	}
}

// NewEngine applies opts, validates the table name and builds the dialect for it.
func NewEngine(opts []Option, dialect func(TableName, outbox.Order) Dialect) (*Engine, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := ParseTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return New(table, cfg.Order, cfg.ChunkSize, dialect(table, cfg.Order)), nil
}

// Store implements outbox.Storage and outbox.Provisioner over database/sql.
// Backends embed it and contribute only their dialect.
type Store struct {
	engine *Engine
}

var (
	_ outbox.Storage[outbox.Querier]     = (*Store)(nil)
	_ outbox.Provisioner[outbox.Querier] = (*Store)(nil)
)

// NewStore wraps engine.
func NewStore(engine *Engine) *Store {
	return &Store{engine: engine}
}

// Engine returns the underlying engine.
func (s *Store) Engine() *Engine {
	return s.engine
}

// Table returns the validated table name.
func (s *Store) Table() string {
	return s.engine.Table().String()
}

// Send inserts messages with multi-row INSERTs through tx.
func (s *Store) Send(ctx context.Context, tx outbox.Querier, messages []outbox.Message) error {
	if tx == nil {
		return ErrTxRequired
	}

	return s.engine.Send(ctx, tx, messages)
}

// PeekLock removes up to maxCount unlocked rows through tx and returns them in dequeue order.
func (s *Store) PeekLock(ctx context.Context, tx outbox.Querier, maxCount int) ([]outbox.Message, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}

	return s.engine.PeekLock(ctx, tx, maxCount)
}

// Count returns the number of rows visible to tx.
func (s *Store) Count(ctx context.Context, tx outbox.Querier) (int, error) {
	if tx == nil {
		return 0, ErrTxRequired
	}

	return s.engine.Count(ctx, tx)
}

// Clear deletes every row.
func (s *Store) Clear(ctx context.Context, tx outbox.Querier) error {
	if tx == nil {
		return ErrTxRequired
	}

	return s.engine.Clear(ctx, tx)
}

// EnsureTable creates the schema (when qualified) and the table if missing.
func (s *Store) EnsureTable(ctx context.Context, tx outbox.Querier) error {
	if tx == nil {
		return ErrTxRequired
	}

	return s.engine.EnsureTable(ctx, tx)
}
