package sqlserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velmie/sqloutbox"
)

func TestDialectStatements(t *testing.T) {
	store := MustNewStore(WithTable("dbo.outbox"))
	dialect := store.Engine().Dialect()

	require.Equal(t,
		"WITH batch AS (SELECT TOP (@p1) Id, Headers, Body FROM dbo.outbox WITH (ROWLOCK, UPDLOCK, READPAST) ORDER BY Id ASC) "+
			"DELETE FROM batch OUTPUT deleted.Id, deleted.Headers, deleted.Body",
		dialect.Dequeue,
	)
	require.Len(t, dialect.Schema, 2)
	require.Equal(t, "IF SCHEMA_ID(N'dbo') IS NULL EXEC('CREATE SCHEMA dbo')", dialect.Schema[0])
	require.Contains(t, dialect.Schema[1], "IF OBJECT_ID(N'dbo.outbox', N'U') IS NULL")
	require.Contains(t, dialect.Schema[1], "Id BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY")
}

func TestDialectNewestFirst(t *testing.T) {
	store := MustNewStore(WithOrder(outbox.OrderNewestFirst))
	require.Contains(t, store.Engine().Dialect().Dequeue, "ORDER BY Id DESC")
}

func TestChunkSizeCappedAtThousandRows(t *testing.T) {
	store := MustNewStore(WithChunkSize(5000))
	require.Equal(t, 1000, store.Engine().ChunkSize())

	msgs := make([]outbox.Message, 1001)
	stmts, err := store.Engine().Inserts(msgs)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	require.Len(t, stmts[0].Args, 2000)
	require.Contains(t, stmts[1].SQL, "VALUES (@p1,@p2)")
}

func TestStoreRequiresTx(t *testing.T) {
	err := MustNewStore().Send(context.Background(), nil, []outbox.Message{{}})
	require.ErrorIs(t, err, ErrTxRequired)
}
