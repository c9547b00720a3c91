package notify

import (
	"context"
	"fmt"
)

// Publisher hands messages to an asynchronous delivery worker
type Publisher interface {
	PublishNotification(ctx context.Context, msg *Message) error
}

// QueueNotifier defers delivery to a worker through a Publisher
type QueueNotifier struct {
	Publisher Publisher
}

// NewQueueNotifier returns a QueueNotifier
func NewQueueNotifier(p Publisher) (*QueueNotifier, error) {
	if p == nil {
		return nil, fmt.Errorf("nil Publisher is invalid")
	}
	return &QueueNotifier{
		Publisher: p,
	}, nil
}

func (q *QueueNotifier) Send(ctx context.Context, msg *Message) error {
	if err := q.Publisher.PublishNotification(ctx, msg); err != nil {
		return deliveryError(err, "Cannot queue notification")
	}
	return nil
}
