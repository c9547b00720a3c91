package broker

import (
	"context"
	"encoding/json"

	"github.com/myupstage/visitationbook-backend/notify"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ notify.Publisher = &AMQPBroker{}

const (
	notificationExchange   string = "notification"
	notificationQueue             = "notification_email"
	notificationRoutingKey        = "email"

	contentTypeProtobuf = "application/x-protobuf"
	contentTypeJSON     = "application/json"
)

// AMQPBroker carries notifications to the delivery worker via RabbitMQ
type AMQPBroker struct {
	connection *amqp.Connection
	channel    *amqp.Channel
}

// NewAMQPBroker returns a Message Broker over RabbitMQ
func NewAMQPBroker(amqpURI string) (*AMQPBroker, error) {
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		amqpConn.Close()
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	broker := &AMQPBroker{
		connection: amqpConn,
		channel:    amqpChan,
	}
	if err := broker.setupNotificationExchange(); err != nil {
		broker.Close()
		return nil, extErrors.Wrap(err, "Cannot declare exchange for notifications")
	}
	if err := broker.setupQueue(); err != nil {
		broker.Close()
		return nil, extErrors.Wrap(err, "Cannot setup queue")
	}

	return broker, nil
}

func (a *AMQPBroker) setupNotificationExchange() error {
	return a.channel.ExchangeDeclare(
		notificationExchange, // name
		"direct",             // type
		true,                 // durable
		false,                // auto-deleted
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	)
}

func (a *AMQPBroker) setupQueue() error {
	if _, err := a.channel.QueueDeclare(
		notificationQueue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}
	return a.channel.QueueBind(
		notificationQueue,
		notificationRoutingKey,
		notificationExchange,
		false,
		nil,
	)
}

// Close will close the channel and connection to release resources
func (a *AMQPBroker) Close() {
	a.channel.Close()
	a.connection.Close()
}

// PublishNotification queues msg for the delivery worker
func (a *AMQPBroker) PublishNotification(ctx context.Context, msg *notify.Message) error {
	body, err := encodeNotification(msg)
	if err != nil {
		return err
	}
	if err := a.channel.Publish(
		notificationExchange,
		notificationRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  contentTypeProtobuf,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	); err != nil {
		return extErrors.Wrap(err, "Cannot publish notification")
	}
	return nil
}

// ReceiveNotifications delivers queued messages until ctx is done.
// A message is acknowledged once the receiver has taken it; undecodable bodies are dropped.
func (a *AMQPBroker) ReceiveNotifications(ctx context.Context) (<-chan *notify.Message, error) {
	msgChan, err := a.channel.Consume(
		notificationQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot setup consumer")
	}
	rChan := make(chan *notify.Message)
	go func() {
		defer close(rChan)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgChan:
				if !ok {
					return
				}
				msg, err := decodeNotification(d.ContentType, d.Body)
				if err != nil {
					d.Nack(false, false)
					continue
				}
				select {
				case rChan <- msg:
					d.Ack(false)
				case <-ctx.Done():
					d.Nack(false, true)
					return
				}
			}
		}
	}()
	return rChan, nil
}

// encodeNotification writes msg as a protobuf Struct holding its JSON fields
func encodeNotification(msg *notify.Message) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot encode message into bytes")
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, extErrors.Wrap(err, "Cannot encode message into bytes")
	}
	payload, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot encode message into bytes")
	}
	body, err := proto.Marshal(payload)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot encode message into bytes")
	}
	return body, nil
}

// decodeNotification reads a protobuf body, or a JSON body queued before the switch to protobuf
func decodeNotification(contentType string, body []byte) (*notify.Message, error) {
	raw := body
	if contentType != contentTypeJSON {
		var payload structpb.Struct
		if err := proto.Unmarshal(body, &payload); err != nil {
			return nil, extErrors.Wrap(err, "Cannot decode notification")
		}
		var err error
		if raw, err = json.Marshal(payload.AsMap()); err != nil {
			return nil, extErrors.Wrap(err, "Cannot decode notification")
		}
	}
	var msg notify.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, extErrors.Wrap(err, "Cannot decode notification")
	}
	if msg.To == "" {
		return nil, extErrors.New("Notification has no recipient")
	}
	return &msg, nil
}
