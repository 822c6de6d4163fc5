package sqlstore

import (
	"errors"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/require"

	"github.com/velmie/sqloutbox"
)

func newTestEngine(t *testing.T, chunk int, placeholder sq.PlaceholderFormat) *Engine {
	t.Helper()

	table, err := ParseTableName("outbox")
	require.NoError(t, err)

	return New(table, outbox.OrderOldestFirst, chunk, Dialect{Name: "outbox test", Placeholder: placeholder})
}

func TestEngineInsertsChunksMessages(t *testing.T) {
	engine := newTestEngine(t, 2, sq.Question)
	msgs := []outbox.Message{
		outbox.NewMessage([]byte("a"), outbox.Headers{"type": "A"}),
		outbox.NewMessage([]byte("b"), nil),
		outbox.NewMessage(nil, outbox.Headers{"Type": "C"}),
	}

	stmts, err := engine.Inserts(msgs)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	require.Equal(t, "INSERT INTO outbox (Headers,Body) VALUES (?,?),(?,?)", stmts[0].SQL)
	require.Equal(t, []any{`{"type":"A"}`, []byte("a"), "{}", []byte("b")}, stmts[0].Args)
	require.Equal(t, "INSERT INTO outbox (Headers,Body) VALUES (?,?)", stmts[1].SQL)
	require.Equal(t, []any{`{"Type":"C"}`, []byte{}}, stmts[1].Args)
}

func TestEngineInsertsUsesDialectPlaceholders(t *testing.T) {
	msgs := []outbox.Message{outbox.NewMessage([]byte("a"), nil), outbox.NewMessage([]byte("b"), nil)}

	dollar, err := newTestEngine(t, 0, sq.Dollar).Inserts(msgs)
	require.NoError(t, err)
	require.Equal(t, "INSERT INTO outbox (Headers,Body) VALUES ($1,$2),($3,$4)", dollar[0].SQL)

	atp, err := newTestEngine(t, 0, sq.AtP).Inserts(msgs)
	require.NoError(t, err)
	require.Equal(t, "INSERT INTO outbox (Headers,Body) VALUES (@p1,@p2),(@p3,@p4)", atp[0].SQL)
}

func TestEngineInsertsRejectInvalidUTF8Headers(t *testing.T) {
	msgs := []outbox.Message{
		outbox.NewMessage([]byte("ok"), nil),
		outbox.NewMessage([]byte("bad"), outbox.Headers{"trace": "a\xffb"}),
	}

	_, err := newTestEngine(t, 0, sq.Question).Inserts(msgs)
	require.ErrorIs(t, err, outbox.ErrInvalidHeaders)
}

func TestEngineChunkSizeDefaultsAndCap(t *testing.T) {
	table, err := ParseTableName("outbox")
	require.NoError(t, err)

	require.Equal(t, DefaultChunkSize, New(table, outbox.OrderOldestFirst, 0, Dialect{}).ChunkSize())
	require.Equal(t, 500, New(table, outbox.OrderOldestFirst, 5000, Dialect{MaxChunkSize: 500}).ChunkSize())
	require.Equal(t, 10, New(table, outbox.OrderOldestFirst, 10, Dialect{MaxChunkSize: 500}).ChunkSize())
}

func TestEngineDeleteByID(t *testing.T) {
	engine := newTestEngine(t, 0, sq.Question)

	stmt, err := engine.DeleteByID([]int64{4, 7, 9})
	require.NoError(t, err)
	require.Equal(t, "DELETE FROM outbox WHERE Id IN (?,?,?)", stmt.SQL)
	require.Equal(t, []any{int64(4), int64(7), int64(9)}, stmt.Args)
}

func TestMessagesSortsByOrder(t *testing.T) {
	rows := func() []Row {
		return []Row{
			{ID: 3, Headers: `{"n":"3"}`, Body: []byte("3")},
			{ID: 1, Headers: `{"n":"1"}`, Body: []byte("1")},
			{ID: 2, Headers: "", Body: nil},
		}
	}

	oldest, err := Messages(rows(), outbox.OrderOldestFirst)
	require.NoError(t, err)
	require.Equal(t, []byte("1"), oldest[0].Body)
	require.Equal(t, []byte{}, oldest[1].Body)
	require.Equal(t, outbox.Headers{}, oldest[1].Headers)
	require.Equal(t, []byte("3"), oldest[2].Body)

	newest, err := Messages(rows(), outbox.OrderNewestFirst)
	require.NoError(t, err)
	require.Equal(t, "3", newest[0].Headers["n"])
	require.Equal(t, "1", newest[2].Headers["n"])
}

func TestMessagesRejectsMalformedHeaders(t *testing.T) {
	_, err := Messages([]Row{{ID: 1, Headers: "{not json"}}, outbox.OrderOldestFirst)
	require.Error(t, err)
	require.True(t, errors.Is(err, outbox.ErrInvalidHeaders))
}

func TestChunks(t *testing.T) {
	require.Nil(t, Chunks([]int{}, 3))
	require.Equal(t, [][]int{{1, 2}}, Chunks([]int{1, 2}, 3))
	require.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Chunks([]int{1, 2, 3, 4, 5}, 2))
	require.Equal(t, [][]int{{1, 2, 3}}, Chunks([]int{1, 2, 3}, 0))
}

type fakeRows struct {
	rows []Row
	pos  int
	err  error
}

func (f *fakeRows) Next() bool {
	if f.pos >= len(f.rows) {
		return false
	}
	f.pos++

	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	row := f.rows[f.pos-1]
	*dest[0].(*int64) = row.ID
	*dest[1].(*string) = row.Headers
	*dest[2].(*[]byte) = row.Body

	return nil
}

func (f *fakeRows) Err() error {
	return f.err
}

func TestCollectRows(t *testing.T) {
	src := &fakeRows{rows: []Row{{ID: 1, Headers: "{}", Body: []byte("x")}, {ID: 2, Headers: "{}"}}}

	rows, err := CollectRows(src, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, IDs(rows))

	_, err = CollectRows(&fakeRows{err: errors.New("boom")}, 0)
	require.ErrorContains(t, err, "boom")
}
