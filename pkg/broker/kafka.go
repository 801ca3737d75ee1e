package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaDialTimeout = 5 * time.Second

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes every event to one topic keyed by order number, so
// events of the same order keep their relative order.
type KafkaPublisher struct {
	writer  kafkaWriter
	brokers []string
	dial    func(ctx context.Context, network, address string) (net.Conn, error)
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	dialer := &net.Dialer{Timeout: kafkaDialTimeout}
	return &KafkaPublisher{writer: writer, brokers: brokers, dial: dialer.DialContext}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	headers := make([]kafka.Header, 0, len(msg.Headers)+1)
	headers = append(headers, kafka.Header{Key: "routing_key", Value: []byte(msg.RoutingKey)})
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.Key),
		Value:   msg.Body,
		Headers: headers,
		Time:    msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

// Ping succeeds when any configured broker accepts a TCP connection.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	var errs []error
	for _, addr := range p.brokers {
		conn, err := p.dial(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("no kafka broker reachable: %w", errors.Join(errs...))
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
