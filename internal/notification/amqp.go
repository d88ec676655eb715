package notification

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultExchange = "wallet.events"

// AMQPNotifier publishes notifications to a RabbitMQ exchange so downstream
// consumers (SMS, push, reconciliation) can react to completed movements.
type AMQPNotifier struct {
	channel  *amqp.Channel
	exchange string
}

// NewAMQPNotifier builds a notifier publishing on the given channel. An empty
// exchange selects the default wallet events exchange.
func NewAMQPNotifier(ch *amqp.Channel, exchange string) *AMQPNotifier {
	if exchange == "" {
		exchange = defaultExchange
	}
	return &AMQPNotifier{channel: ch, exchange: exchange}
}

// Send publishes the message as a persistent JSON event routed by kind.
func (n *AMQPNotifier) Send(ctx context.Context, message Message) error {
	body, err := json.Marshal(map[string]string{
		"kind":        message.Kind,
		"destination": message.Destination,
		"body":        message.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	err = n.channel.PublishWithContext(ctx,
		n.exchange,
		message.Kind, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
