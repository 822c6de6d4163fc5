package outbox

import (
	"context"
	"errors"
	"testing"
)

func TestProducerPublishMergesHeaders(t *testing.T) {
	storage := &fakeStorage{}
	producer := NewProducer[*fakeTx](storage)

	msg := NewMessage([]byte("body"), Headers{HeaderType: "OrderCreated", "tenant": "a"})
	err := producer.Publish(context.Background(), &fakeTx{}, msg, Headers{"tenant": "b", HeaderCorrelationID: "c-1"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(storage.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(storage.sent))
	}
	got := storage.sent[0]
	if got.Headers["tenant"] != "b" {
		t.Fatalf("expected publish-time header to win, got %q", got.Headers["tenant"])
	}
	if got.Headers[HeaderType] != "OrderCreated" || got.Headers[HeaderCorrelationID] != "c-1" {
		t.Fatalf("unexpected headers: %v", got.Headers)
	}
	if msg.Headers["tenant"] != "a" {
		t.Fatalf("expected caller headers to stay untouched")
	}
}

func TestProducerPublishBatchEmptyIsNoop(t *testing.T) {
	storage := &fakeStorage{}
	if err := NewProducer[*fakeTx](storage).PublishBatch(context.Background(), &fakeTx{}, nil); err != nil {
		t.Fatalf("publish batch: %v", err)
	}
	if storage.sent != nil {
		t.Fatalf("expected nothing sent")
	}
}

func TestProducerNormalizesNilBody(t *testing.T) {
	storage := &fakeStorage{}
	if err := NewProducer[*fakeTx](storage).Publish(context.Background(), &fakeTx{}, Message{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if storage.sent[0].Body == nil || storage.sent[0].Headers == nil {
		t.Fatalf("expected non-nil body and headers")
	}
}

func TestProducerStampsMessageIDs(t *testing.T) {
	storage := &fakeStorage{}
	producer := NewProducer[*fakeTx](storage, WithMessageIDs())

	msgs := []Message{
		NewMessage([]byte("1"), nil),
		NewMessage([]byte("2"), Headers{HeaderMessageID: "keep-me"}),
	}
	if err := producer.PublishBatch(context.Background(), &fakeTx{}, msgs); err != nil {
		t.Fatalf("publish batch: %v", err)
	}
	if id := storage.sent[0].Headers[HeaderMessageID]; len(id) != 36 {
		t.Fatalf("expected generated uuid, got %q", id)
	}
	if id := storage.sent[1].Headers[HeaderMessageID]; id != "keep-me" {
		t.Fatalf("expected existing id to be kept, got %q", id)
	}
}

func TestProducerIDGeneratorError(t *testing.T) {
	genErr := errors.New("entropy")
	producer := NewProducer[*fakeTx](&fakeStorage{}, WithMessageIDs(), WithIDGenerator(func() (string, error) {
		return "", genErr
	}))

	err := producer.Publish(context.Background(), &fakeTx{}, NewMessage(nil, nil))
	if !errors.Is(err, genErr) {
		t.Fatalf("expected generator error, got %v", err)
	}
}

func TestProducerValidation(t *testing.T) {
	storage := &fakeStorage{}
	errNoType := errors.New("type header required")
	producer := NewProducer[*fakeTx](storage, WithValidation(func(msg Message) error {
		if msg.Headers[HeaderType] == "" {
			return errNoType
		}

		return nil
	}))

	msgs := []Message{NewMessage(nil, Headers{HeaderType: "A"}), NewMessage(nil, nil)}
	err := producer.PublishBatch(context.Background(), &fakeTx{}, msgs)
	if !errors.Is(err, errNoType) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(storage.sent) != 0 {
		t.Fatalf("expected nothing sent when any message is invalid")
	}

	err = producer.Publish(context.Background(), &fakeTx{}, NewMessage(nil, nil), Headers{HeaderType: "B"})
	if err != nil {
		t.Fatalf("expected publish-time headers to satisfy validation: %v", err)
	}
}

type failingSender struct {
	err error
}

func (s failingSender) Send(context.Context, *fakeTx, []Message) error {
	return s.err
}

func TestProducerWrapsSendError(t *testing.T) {
	sendErr := errors.New("duplicate key")
	err := NewProducer[*fakeTx](failingSender{err: sendErr}).Publish(context.Background(), &fakeTx{}, Message{})
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected send error, got %v", err)
	}
	if err.Error() != "outbox: publish failed: duplicate key" {
		t.Fatalf("unexpected error text: %v", err)
	}
}
