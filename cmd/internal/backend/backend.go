// Package backend opens a configured outbox table behind a driver-independent facade
// for the command line tools.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Registers the "sqlserver" driver.
	_ "github.com/denisenkom/go-mssqldb"
	// Registers the "mysql" driver.
	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	// Registers the "postgres" driver.
	_ "github.com/lib/pq"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/cmd/internal/config"
	"github.com/velmie/sqloutbox/mysql"
	"github.com/velmie/sqloutbox/postgres"
	"github.com/velmie/sqloutbox/sqlite"
	"github.com/velmie/sqloutbox/sqlserver"
)

// ErrUnsupportedDriver is returned by Open for unknown drivers.
var ErrUnsupportedDriver = errors.New("backend: unsupported driver")

// Relay is satisfied by *outbox.Relay for every transaction type.
type Relay interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
	Done() <-chan struct{}
	Err() error
	Run(ctx context.Context) error
	ProcessOnce(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

type store[Tx any] interface {
	outbox.Storage[Tx]
	outbox.Provisioner[Tx]
	Table() string
}

// Outbox is one opened outbox table.
type Outbox struct {
	driver string
	table  string

	newRelay func(outbox.Handler, ...outbox.RelayOption) Relay
	ensure   func(context.Context) error
	publish  func(context.Context, []outbox.Message) error
	close    func() error
}

// Open connects to the database described by cfg and verifies it is reachable.
func Open(ctx context.Context, cfg config.Config) (*Outbox, error) {
	order := cfg.DequeueOrder()

	switch cfg.Driver {
	case config.DriverMySQL:
		db, err := openSQL(ctx, "mysql", cfg.DSN)
		if err != nil {
			return nil, err
		}
		s, err := mysql.NewStore(mysql.WithTable(cfg.Table), mysql.WithOrder(order))
		if err != nil {
			return nil, closeWith(db.Close, err)
		}

		return build(cfg.Driver, mysql.Scopes(db), s, db.Close), nil
	case config.DriverPostgres:
		db, err := openSQL(ctx, "postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		s, err := postgres.NewStore(postgres.WithTable(cfg.Table), postgres.WithOrder(order))
		if err != nil {
			return nil, closeWith(db.Close, err)
		}

		return build(cfg.Driver, postgres.Scopes(db), s, db.Close), nil
	case config.DriverPgx:
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("backend: open pgx pool: %w", err)
		}
		closePool := func() error {
			pool.Close()

			return nil
		}
		if err := pool.Ping(ctx); err != nil {
			return nil, closeWith(closePool, fmt.Errorf("backend: ping: %w", err))
		}
		s, err := postgres.NewPgxStore(postgres.WithTable(cfg.Table), postgres.WithOrder(order))
		if err != nil {
			return nil, closeWith(closePool, err)
		}
		scopes := postgres.PgxScopes(pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})

		return build(cfg.Driver, scopes, s, closePool), nil
	case config.DriverSQLServer:
		db, err := openSQL(ctx, "sqlserver", cfg.DSN)
		if err != nil {
			return nil, err
		}
		s, err := sqlserver.NewStore(sqlserver.WithTable(cfg.Table), sqlserver.WithOrder(order))
		if err != nil {
			return nil, closeWith(db.Close, err)
		}

		return build(cfg.Driver, sqlserver.Scopes(db), s, db.Close), nil
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, closeWith(db.Close, fmt.Errorf("backend: ping: %w", err))
		}
		s, err := sqlite.NewStore(sqlite.WithTable(cfg.Table), sqlite.WithOrder(order))
		if err != nil {
			return nil, closeWith(db.Close, err)
		}

		return build(cfg.Driver, sqlite.Scopes(db), s, db.Close), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

func openSQL(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("backend: open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, closeWith(db.Close, fmt.Errorf("backend: ping: %w", err))
	}

	return db, nil
}

func closeWith(closeFn func() error, err error) error {
	if closeErr := closeFn(); closeErr != nil {
		return errors.Join(err, closeErr)
	}

	return err
}

func build[Tx any](driver string, scopes outbox.ScopeFactory[Tx], s store[Tx], closeFn func() error) *Outbox {
	producer := outbox.NewProducer[Tx](s, outbox.WithMessageIDs())

	return &Outbox{
		driver: driver,
		table:  s.Table(),
		newRelay: func(handler outbox.Handler, opts ...outbox.RelayOption) Relay {
			return outbox.NewRelay(scopes, outbox.Storage[Tx](s), handler, opts...)
		},
		ensure: func(ctx context.Context) error {
			return outbox.Provision(ctx, scopes, outbox.Provisioner[Tx](s))
		},
		publish: func(ctx context.Context, msgs []outbox.Message) error {
			scope, err := scopes(ctx)
			if err != nil {
				return err
			}
			if err := producer.PublishBatch(ctx, scope.Tx(), msgs); err != nil {
				return closeWith(func() error { return scope.Rollback(ctx) }, err)
			}
			if err := scope.Commit(ctx); err != nil {
				return closeWith(func() error { return scope.Rollback(ctx) }, fmt.Errorf("backend: commit: %w", err))
			}

			return nil
		},
		close: closeFn,
	}
}

// Driver returns the configured driver name.
func (o *Outbox) Driver() string {
	return o.driver
}

// Table returns the validated table name.
func (o *Outbox) Table() string {
	return o.table
}

// NewRelay returns a relay draining the table into handler.
func (o *Outbox) NewRelay(handler outbox.Handler, opts ...outbox.RelayOption) Relay {
	return o.newRelay(handler, opts...)
}

// EnsureTable creates the table when it does not exist.
func (o *Outbox) EnsureTable(ctx context.Context) error {
	return o.ensure(ctx)
}

// Publish enqueues msgs in a transaction of its own, stamping message ids.
func (o *Outbox) Publish(ctx context.Context, msgs ...outbox.Message) error {
	return o.publish(ctx, msgs)
}

// Count returns the current backlog.
func (o *Outbox) Count(ctx context.Context) (int, error) {
	return o.newRelay(rejectHandler).Count(ctx)
}

// Clear removes every row.
func (o *Outbox) Clear(ctx context.Context) error {
	return o.newRelay(rejectHandler).Clear(ctx)
}

// Close releases the database handle.
func (o *Outbox) Close() error {
	return o.close()
}

var rejectHandler = outbox.HandlerFunc(func(context.Context, outbox.Message) error {
	return errors.New("backend: relay not configured for delivery")
})
