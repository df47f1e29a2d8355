// Package kafka publica los eventos de ciclo de vida de las señales para
// colaboradores externos (dashboards, alertas).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

// Tipos de evento publicados en el campo Type de SignalEvent.
const (
	// EventSignalCreated se publica al persistir una señal pendiente.
	EventSignalCreated = "signal.created"
	// EventSignalSettled se publica cuando la señal queda liquidada.
	EventSignalSettled = "signal.settled"
)

// SignalEvent es el payload JSON publicado en el topic.
type SignalEvent struct {
	Type       string          `json:"type"`
	SignalID   string          `json:"signal_id"`
	MarketKey  string          `json:"market_key"`
	Title      string          `json:"title"`
	MarketType string          `json:"market_type"`
	Direction  string          `json:"direction"`
	Price      float64         `json:"price"`
	AIScore    float64         `json:"ai_score"`
	Confidence float64         `json:"confidence"`
	ShouldHide bool            `json:"should_hide"`
	Outcome    *domain.Outcome `json:"outcome,omitempty"`
	Factors    []string        `json:"factors"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher implementa ports.SignalPublisher sobre un SyncProducer de sarama.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

// NewPublisher conecta con los brokers y crea un productor síncrono.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka.NewPublisher: %w", err)
	}
	return NewPublisherWithProducer(producer, topic), nil
}

// NewPublisherWithProducer envuelve un productor ya creado (tests con sarama/mocks).
func NewPublisherWithProducer(p sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: p, topic: topic, now: time.Now}
}

// PublishCreated emite signal.created.
func (p *Publisher) PublishCreated(ctx context.Context, s domain.Signal) error {
	return p.publish(ctx, EventSignalCreated, s)
}

// PublishSettled emite signal.settled.
func (p *Publisher) PublishSettled(ctx context.Context, s domain.Signal) error {
	return p.publish(ctx, EventSignalSettled, s)
}

// Close cierra el productor.
func (p *Publisher) Close() error {
	return p.producer.Close()
}

func (p *Publisher) publish(ctx context.Context, eventType string, s domain.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(SignalEvent{
		Type:       eventType,
		SignalID:   s.ID,
		MarketKey:  s.MarketKey,
		Title:      s.Title,
		MarketType: s.MarketType,
		Direction:  s.Direction,
		Price:      s.Price,
		AIScore:    s.AIScore,
		Confidence: s.Confidence,
		ShouldHide: s.ShouldHide,
		Outcome:    s.Outcome,
		Factors:    s.FactorNames(),
		OccurredAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("kafka.publish: encode %s: %w", eventType, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(s.ID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(eventType)},
		},
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka.publish: send %s %s: %w", eventType, s.ID, err)
	}
	return nil
}
