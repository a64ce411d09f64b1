package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Publisher hands booking events to a broker.  Errors are returned so the
// caller can log them; a failed publish never undoes a committed change.
type Publisher interface {
	Publish(ctx context.Context, ev BookingEvent) error
	Close() error
}

// Options selects and configures a broker.
type Options struct {
	Broker       string // rabbitmq | kafka | none
	AMQPURL      string
	Queue        string
	KafkaBrokers []string
	TopicPrefix  string
}

// NewPublisher builds the publisher named by opts.Broker.
func NewPublisher(opts Options) (Publisher, error) {
	switch strings.ToLower(opts.Broker) {
	case "rabbitmq", "amqp":
		return NewRabbitPublisher(opts.AMQPURL, opts.Queue), nil
	case "kafka":
		return NewKafkaPublisher(opts.KafkaBrokers, opts.TopicPrefix)
	case "", "none":
		return NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown events broker %q", opts.Broker)
	}
}

// NopPublisher logs events at debug level and drops them.
type NopPublisher struct{}

func (NopPublisher) Publish(_ context.Context, ev BookingEvent) error {
	logrus.WithFields(logrus.Fields{"type": ev.Type, "order_code": ev.OrderCode}).Debug("event dropped, no broker configured")
	return nil
}

func (NopPublisher) Close() error { return nil }
