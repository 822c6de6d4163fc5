package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/internal/storetest"
	"github.com/velmie/sqloutbox/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func TestStoreOldestFirst(t *testing.T) {
	db := openDB(t)
	store := sqlite.MustNewStore()

	storetest.Run(t, storetest.Backend[outbox.Querier]{
		Scopes:      sqlite.Scopes(db),
		Storage:     store,
		Provisioner: store,
		Order:       outbox.OrderOldestFirst,
	})
}

func TestStoreNewestFirst(t *testing.T) {
	db := openDB(t)
	store := sqlite.MustNewStore(sqlite.WithTable("outbox_lifo"), sqlite.WithOrder(outbox.OrderNewestFirst))

	storetest.Run(t, storetest.Backend[outbox.Querier]{
		Scopes:      sqlite.Scopes(db),
		Storage:     store,
		Provisioner: store,
		Order:       outbox.OrderNewestFirst,
	})
}

func TestStoreSmallChunks(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	store := sqlite.MustNewStore(sqlite.WithChunkSize(3))
	backend := storetest.Backend[outbox.Querier]{Scopes: sqlite.Scopes(db), Storage: store, Provisioner: store}
	require.NoError(t, outbox.Provision(ctx, backend.Scopes, store))

	msgs := make([]outbox.Message, 10)
	for i := range msgs {
		msgs[i] = outbox.NewMessage([]byte{byte(i)}, nil)
	}
	storetest.Publish(t, backend, msgs...)
	require.Equal(t, 10, storetest.Count(t, backend))

	scope, err := backend.Scopes(ctx)
	require.NoError(t, err)
	got, err := store.PeekLock(ctx, scope.Tx(), 4)
	require.NoError(t, err)
	require.NoError(t, scope.Commit(ctx))
	require.Len(t, got, 4)
	for i, msg := range got {
		require.Equal(t, []byte{byte(i)}, msg.Body)
	}
	require.Equal(t, 6, storetest.Count(t, backend))
}

func TestStoreMissingTableFailsRelayStart(t *testing.T) {
	db := openDB(t)
	store := sqlite.MustNewStore(sqlite.WithTable("never_created"))
	relay := outbox.NewRelay(sqlite.Scopes(db), store, outbox.HandlerFunc(func(context.Context, outbox.Message) error {
		return nil
	}))

	err := relay.Start(context.Background())
	require.Error(t, err)
	require.False(t, relay.Running())
}

func TestStoreRejectsInvalidTable(t *testing.T) {
	_, err := sqlite.NewStore(sqlite.WithTable("outbox where 1=1"))
	require.True(t, errors.Is(err, sqlite.ErrInvalidTableName))
}

func TestStoreRequiresTx(t *testing.T) {
	_, err := sqlite.MustNewStore().PeekLock(context.Background(), nil, 1)
	require.ErrorIs(t, err, sqlite.ErrTxRequired)
}

func TestDSN(t *testing.T) {
	require.Equal(t,
		"file:/tmp/x.db?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate",
		sqlite.DSN("/tmp/x.db"),
	)
}
