package backend_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/cmd/internal/backend"
	"github.com/velmie/sqloutbox/cmd/internal/config"
)

func sqliteConfig(t *testing.T) config.Config {
	t.Helper()

	return config.Config{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "outbox.db"),
		Table:  "outbox",
		Order:  outbox.OrderOldestFirst.String(),
	}
}

func TestOpenSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()

	ob, err := backend.Open(ctx, sqliteConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, ob.Close())
	})

	require.Equal(t, config.DriverSQLite, ob.Driver())
	require.Equal(t, "outbox", ob.Table())
	require.NoError(t, ob.EnsureTable(ctx))
	require.NoError(t, ob.EnsureTable(ctx))

	require.NoError(t, ob.Publish(ctx,
		outbox.NewMessage([]byte("first"), outbox.Headers{"type": "OrderCreated"}),
		outbox.NewMessage([]byte("second"), outbox.Headers{"type": "OrderCreated"}),
	))

	count, err := ob.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	var got []outbox.Message
	relay := ob.NewRelay(outbox.HandlerFunc(func(_ context.Context, msg outbox.Message) error {
		got = append(got, msg)

		return nil
	}), outbox.WithBatchSize(10), outbox.WithPollInterval(time.Millisecond))

	n, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, got, 2)
	require.Equal(t, "first", string(got[0].Body))
	require.Equal(t, "second", string(got[1].Body))
	require.Len(t, got[0].Headers[outbox.HeaderMessageID], 36)

	count, err = ob.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestClear(t *testing.T) {
	ctx := context.Background()

	ob, err := backend.Open(ctx, sqliteConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ob.Close()
	})

	require.NoError(t, ob.EnsureTable(ctx))
	require.NoError(t, ob.Publish(ctx, outbox.NewMessage([]byte("x"), nil)))
	require.NoError(t, ob.Clear(ctx))

	count, err := ob.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestCountFailsWithoutTable(t *testing.T) {
	ctx := context.Background()

	ob, err := backend.Open(ctx, sqliteConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ob.Close()
	})

	_, err = ob.Count(ctx)
	require.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Driver = "oracle"

	_, err := backend.Open(context.Background(), cfg)
	require.ErrorIs(t, err, backend.ErrUnsupportedDriver)
}

func TestOpenRejectsInvalidTable(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Table = "bad-name"

	_, err := backend.Open(context.Background(), cfg)
	require.Error(t, err)
}
