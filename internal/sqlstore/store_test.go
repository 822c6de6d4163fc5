package sqlstore

import (
	"context"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/require"

	"github.com/velmie/sqloutbox"
)

func testDialect(table TableName, order outbox.Order) Dialect {
	return Dialect{
		Name:         "outbox test",
		Placeholder:  sq.Question,
		Count:        "SELECT COUNT(*) FROM " + table.String() + " -- " + order.SQL(),
		MaxChunkSize: 100,
	}
}

func TestNewEngineDefaults(t *testing.T) {
	engine, err := NewEngine(nil, testDialect)
	require.NoError(t, err)
	require.Equal(t, "outbox", engine.Table().String())
	require.Equal(t, outbox.OrderOldestFirst, engine.Order())
	require.Equal(t, 100, engine.ChunkSize())
}

func TestNewEngineOptions(t *testing.T) {
	engine, err := NewEngine([]Option{
		WithTable("app.events"),
		WithOrder(outbox.OrderNewestFirst),
		WithChunkSize(10),
	}, testDialect)
	require.NoError(t, err)
	require.Equal(t, "app.events", engine.Table().String())
	require.Equal(t, outbox.OrderNewestFirst, engine.Order())
	require.Equal(t, 10, engine.ChunkSize())
	require.Equal(t, "SELECT COUNT(*) FROM app.events -- DESC", engine.Dialect().Count)
}

func TestNewEngineRejectsInvalidTable(t *testing.T) {
	_, err := NewEngine([]Option{WithTable("bad-name")}, testDialect)
	require.ErrorIs(t, err, ErrInvalidTableName)
}

func TestStoreRequiresTx(t *testing.T) {
	engine, err := NewEngine(nil, testDialect)
	require.NoError(t, err)
	store := NewStore(engine)
	ctx := context.Background()

	require.Equal(t, "outbox", store.Table())
	require.Same(t, engine, store.Engine())
	require.ErrorIs(t, store.Send(ctx, nil, []outbox.Message{{}}), ErrTxRequired)
	_, err = store.PeekLock(ctx, nil, 1)
	require.ErrorIs(t, err, ErrTxRequired)
	_, err = store.Count(ctx, nil)
	require.ErrorIs(t, err, ErrTxRequired)
	require.ErrorIs(t, store.Clear(ctx, nil), ErrTxRequired)
	require.ErrorIs(t, store.EnsureTable(ctx, nil), ErrTxRequired)
}
