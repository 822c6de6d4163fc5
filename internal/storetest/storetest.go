// Package storetest runs the behavioral suite every outbox storage must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velmie/sqloutbox"
)

// Backend is the storage under test.
type Backend[Tx any] struct {
	Scopes      outbox.ScopeFactory[Tx]
	Storage     outbox.Storage[Tx]
	Provisioner outbox.Provisioner[Tx]
	Order       outbox.Order
}

// Run executes the suite. Subtests share the table and clear it first.
func Run[Tx any](t *testing.T, b Backend[Tx]) {
	t.Helper()

	require.NoError(t, outbox.Provision(context.Background(), b.Scopes, b.Provisioner))

	cases := []struct {
		name string
		fn   func(*testing.T, Backend[Tx])
	}{
		{"EnsureTableIsIdempotent", testEnsureTableIdempotent[Tx]},
		{"RoundTripPreservesMessage", testRoundTrip[Tx]},
		{"RolledBackPublishIsInvisible", testRolledBackPublish[Tx]},
		{"RollbackAfterPeekLockRestoresRows", testRollbackRestores[Tx]},
		{"OrderCreatedScenario", testOrderCreated[Tx]},
		{"ChunkedPublishAndDrain", testChunking[Tx]},
		{"HandlerFailureRedelivers", testAtLeastOnce[Tx]},
		{"CompetingRelaysDoNotShareRows", testCompetingRelays[Tx]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			Clear(t, b)
			tc.fn(t, b)
		})
	}
}

// Clear empties the table.
func Clear[Tx any](t *testing.T, b Backend[Tx]) {
	t.Helper()

	require.NoError(t, newRelay(b, nopHandler()).Clear(context.Background()))
}

// Count returns the committed backlog.
func Count[Tx any](t *testing.T, b Backend[Tx]) int {
	t.Helper()

	count, err := newRelay(b, nopHandler()).Count(context.Background())
	require.NoError(t, err)

	return count
}

// Publish commits msgs in one transaction.
func Publish[Tx any](t *testing.T, b Backend[Tx], msgs ...outbox.Message) {
	t.Helper()

	ctx := context.Background()
	scope, err := b.Scopes(ctx)
	require.NoError(t, err)

	producer := outbox.NewProducer[Tx](b.Storage)
	if err := producer.PublishBatch(ctx, scope.Tx(), msgs); err != nil {
		_ = scope.Rollback(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, scope.Commit(ctx))
}

func testEnsureTableIdempotent[Tx any](t *testing.T, b Backend[Tx]) {
	ctx := context.Background()
	require.NoError(t, outbox.Provision(ctx, b.Scopes, b.Provisioner))

	Publish(t, b, numbered(3)...)
	require.NoError(t, outbox.Provision(ctx, b.Scopes, b.Provisioner))
	require.Equal(t, 3, Count(t, b))
}

func testRoundTrip[Tx any](t *testing.T, b Backend[Tx]) {
	ctx := context.Background()
	body := []byte{0x00, 0xff, 0x10, 'o', 'k', 0x00}
	headers := outbox.Headers{
		"type":           "OrderCreated",
		"Correlation-ID": "Abc-123",
		"note":           "grüße \"quoted\"",
	}
	Publish(t, b, outbox.NewMessage(body, headers), outbox.NewMessage(nil, nil))

	scope, err := b.Scopes(ctx)
	require.NoError(t, err)
	msgs, err := b.Storage.PeekLock(ctx, scope.Tx(), 10)
	require.NoError(t, err)
	require.NoError(t, scope.Commit(ctx))
	require.Len(t, msgs, 2)

	var full, empty outbox.Message
	if len(msgs[0].Body) > 0 {
		full, empty = msgs[0], msgs[1]
	} else {
		full, empty = msgs[1], msgs[0]
	}
	require.Equal(t, body, full.Body)
	require.Equal(t, headers, full.Headers)
	require.Empty(t, empty.Body)
	require.NotNil(t, empty.Headers)
	require.Empty(t, empty.Headers)
}

func testRolledBackPublish[Tx any](t *testing.T, b Backend[Tx]) {
	ctx := context.Background()
	Publish(t, b, numbered(1)...)

	scope, err := b.Scopes(ctx)
	require.NoError(t, err)
	producer := outbox.NewProducer[Tx](b.Storage)
	require.NoError(t, producer.Publish(ctx, scope.Tx(), outbox.NewMessage([]byte("ghost"), nil)))
	require.NoError(t, scope.Rollback(ctx))

	require.Equal(t, 1, Count(t, b))
}

func testRollbackRestores[Tx any](t *testing.T, b Backend[Tx]) {
	ctx := context.Background()
	Publish(t, b, numbered(5)...)

	scope, err := b.Scopes(ctx)
	require.NoError(t, err)
	msgs, err := b.Storage.PeekLock(ctx, scope.Tx(), 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.NoError(t, scope.Rollback(ctx))

	require.Equal(t, 5, Count(t, b))
}

func testOrderCreated[Tx any](t *testing.T, b Backend[Tx]) {
	ctx := context.Background()
	Publish(t, b,
		outbox.NewMessage([]byte(`{"orderId":1}`), outbox.Headers{outbox.HeaderType: "OrderCreated"}),
		outbox.NewMessage([]byte(`{"orderId":2}`), outbox.Headers{outbox.HeaderType: "OrderCreated"}),
	)

	scope, err := b.Scopes(ctx)
	require.NoError(t, err)
	msgs, err := b.Storage.PeekLock(ctx, scope.Tx(), 10)
	require.NoError(t, err)
	require.NoError(t, scope.Commit(ctx))

	require.Len(t, msgs, 2)
	first, second := `{"orderId":1}`, `{"orderId":2}`
	if b.Order == outbox.OrderNewestFirst {
		first, second = second, first
	}
	require.Equal(t, first, string(msgs[0].Body))
	require.Equal(t, second, string(msgs[1].Body))
	require.Equal(t, "OrderCreated", msgs[0].Headers[outbox.HeaderType])
	require.Equal(t, 0, Count(t, b))
}

func testChunking[Tx any](t *testing.T, b Backend[Tx]) {
	const total = 2500
	Publish(t, b, numbered(total)...)
	require.Equal(t, total, Count(t, b))

	var delivered int
	relay := newRelay(b, outbox.HandlerFunc(func(context.Context, outbox.Message) error {
		delivered++

		return nil
	}), outbox.WithBatchSize(1000))

	for {
		n, err := relay.ProcessOnce(context.Background())
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}
	require.Equal(t, total, delivered)
	require.Equal(t, 0, Count(t, b))
}

func testAtLeastOnce[Tx any](t *testing.T, b Backend[Tx]) {
	Publish(t, b, numbered(1)...)

	var attempts, successes int
	relay := newRelay(b, outbox.HandlerFunc(func(context.Context, outbox.Message) error {
		attempts++
		if attempts == 1 {
			return errors.New("broker unavailable")
		}
		successes++

		return nil
	}))

	n, err := relay.ProcessOnce(context.Background())
	require.Error(t, err)
	var handlerErr *outbox.HandlerError
	require.ErrorAs(t, err, &handlerErr)
	require.Equal(t, 0, n)
	require.Equal(t, 1, Count(t, b))

	n, err = relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, successes)
	require.Equal(t, 0, Count(t, b))
}

func testCompetingRelays[Tx any](t *testing.T, b Backend[Tx]) {
	const total = 200
	Publish(t, b, numbered(total)...)

	var mu sync.Mutex
	seen := make(map[string]int, total)
	handler := outbox.HandlerFunc(func(_ context.Context, msg outbox.Message) error {
		mu.Lock()
		seen[string(msg.Body)]++
		mu.Unlock()

		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for range 2 {
		relay := newRelay(b, handler, outbox.WithBatchSize(7), outbox.WithPollInterval(5*time.Millisecond))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = relay.Run(ctx)
		}()
	}

	counter := newRelay(b, nopHandler())
	require.Eventually(t, func() bool {
		mu.Lock()
		delivered := len(seen)
		mu.Unlock()
		if delivered < total {
			return false
		}
		count, err := counter.Count(context.Background())

		return err == nil && count == 0
	}, 30*time.Second, 20*time.Millisecond)
	cancel()
	wg.Wait()

	require.Len(t, seen, total)
	for body, n := range seen {
		require.Equalf(t, 1, n, "message %s delivered %d times", body, n)
	}
}

func newRelay[Tx any](b Backend[Tx], handler outbox.Handler, opts ...outbox.RelayOption) *outbox.Relay[Tx] {
	return outbox.NewRelay(b.Scopes, b.Storage, handler, opts...)
}

func nopHandler() outbox.Handler {
	return outbox.HandlerFunc(func(context.Context, outbox.Message) error { return nil })
}

func numbered(n int) []outbox.Message {
	msgs := make([]outbox.Message, n)
	for i := range msgs {
		msgs[i] = outbox.NewMessage([]byte(strconv.Itoa(i)), outbox.Headers{
			outbox.HeaderType: fmt.Sprintf("Numbered%d", i%3),
		})
	}

	return msgs
}
