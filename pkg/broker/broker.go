// Package broker relays outbox events to the configured message broker.
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bistrodesk/orderflow/pkg/config"
	"github.com/bistrodesk/orderflow/pkg/logger"
)

// Message is one outbox event ready for delivery. RoutingKey selects the
// RabbitMQ binding; Key keeps all events of one order on one Kafka partition.
type Message struct {
	ID         string
	RoutingKey string
	Key        string
	Body       []byte
	Headers    map[string]string
	Timestamp  time.Time
}

// Publisher delivers messages and reports once the broker accepted them.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Ping(ctx context.Context) error
	Close() error
}

// New connects the publisher selected by cfg.Kind.
func New(ctx context.Context, cfg config.BrokerConfig, logg *logger.Logger) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case config.BrokerKindRabbitMQ:
		pub, err := DialRabbitMQ(cfg.RabbitURL, cfg.Exchange)
		if err != nil {
			return nil, err
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "exchange", cfg.Exchange), "rabbitmq publisher connected")
		}
		return pub, nil
	case config.BrokerKindKafka:
		pub, err := NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "topic", cfg.KafkaTopic), "kafka publisher configured")
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unsupported broker kind %q", cfg.Kind)
	}
}
