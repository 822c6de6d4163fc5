// Package rabbitmq relays outbox messages to a RabbitMQ exchange.
//
// Handler maps a message onto an amqp.Publishing: the well-known headers fill
// Type, MessageId, CorrelationId and ContentType, the rest travel in the
// header table. Use NewConfirmPublisher so a message counts as delivered only
// after the broker acknowledges it.
package rabbitmq
