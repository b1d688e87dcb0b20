package jobs

import (
	"context"
)

// Message attributes sent along with every job.
const (
	AttrSessionID   = "syncSessionId"
	AttrPayloadType = "payloadType"
	AttrRequestID   = "requestId"
)

// Queue takes jobs to the worker. Submit returns the job id, which is the
// message id the worker sees on delivery.
type Queue interface {
	Submit(ctx context.Context, body []byte, attributes map[string]string) (string, error)
}

type sqsPublisher interface {
	Publish(ctx context.Context, body []byte, attributes map[string]string) (string, error)
}

// SQSQueue submits jobs to an SQS queue.
type SQSQueue struct {
	publisher sqsPublisher
}

// NewSQSQueue returns a queue backed by an SQS publisher.
func NewSQSQueue(publisher sqsPublisher) *SQSQueue {
	return &SQSQueue{publisher: publisher}
}

// Submit sends body with its attributes.
func (q *SQSQueue) Submit(ctx context.Context, body []byte, attributes map[string]string) (string, error) {
	return q.publisher.Publish(ctx, body, attributes)
}

type rabbitPublisher interface {
	Publish(ctx context.Context, routingKey string, message []byte) (string, error)
}

// RabbitMQQueue submits jobs to a RabbitMQ exchange. Attributes are not
// carried: the body holds everything the worker needs.
type RabbitMQQueue struct {
	publisher  rabbitPublisher
	routingKey string
}

// NewRabbitMQQueue returns a queue publishing to routingKey.
func NewRabbitMQQueue(publisher rabbitPublisher, routingKey string) *RabbitMQQueue {
	return &RabbitMQQueue{publisher: publisher, routingKey: routingKey}
}

// Submit publishes body.
func (q *RabbitMQQueue) Submit(ctx context.Context, body []byte, _ map[string]string) (string, error) {
	return q.publisher.Publish(ctx, q.routingKey, body)
}
