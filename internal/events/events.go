// Package events публикует доменные события записи в Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mmeshcher/branchqueue/internal/model"
)

// Типы событий. Тип события совпадает с именем топика.
const (
	TypeBooked        = "appointment.booked.v1"
	TypeRescheduled   = "appointment.rescheduled.v1"
	TypeCancelled     = "appointment.cancelled.v1"
	TypeStatusChanged = "appointment.status_changed.v1"
)

// Event описывает изменение записи.
type Event struct {
	ID             string                  `json:"eventId"`
	Type           string                  `json:"eventType"`
	OccurredAt     time.Time               `json:"occurredAt"`
	Appointment    AppointmentSnapshot     `json:"appointment"`
	PreviousSlot   string                  `json:"previousSlot,omitempty"`
	PreviousStatus model.AppointmentStatus `json:"previousStatus,omitempty"`
}

// AppointmentSnapshot содержит поля записи без контактных данных клиента.
type AppointmentSnapshot struct {
	ID              string                  `json:"id"`
	BranchID        string                  `json:"branchId"`
	EntityType      string                  `json:"entityType"`
	ServiceType     string                  `json:"serviceType"`
	TimeSlot        string                  `json:"timeSlot"`
	Status          model.AppointmentStatus `json:"status"`
	WindowNumber    *int                    `json:"windowNumber,omitempty"`
	WaitDuration    *int                    `json:"waitDuration,omitempty"`
	ServiceDuration *int                    `json:"serviceDuration,omitempty"`
}

// New создаёт событие указанного типа для записи.
func New(eventType string, a *model.Appointment, now time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: now.UTC(),
		Appointment: AppointmentSnapshot{
			ID:              a.ID,
			BranchID:        a.BranchID,
			EntityType:      a.EntityType,
			ServiceType:     a.Service.Type,
			TimeSlot:        a.TimeSlot,
			Status:          a.Status,
			WindowNumber:    a.WindowNumber,
			WaitDuration:    a.WaitDuration,
			ServiceDuration: a.ServiceDuration,
		},
	}
}

// Publisher отправляет события.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop отбрасывает события. Используется, когда брокеры не настроены.
type Noop struct{}

// Publish ничего не отправляет и всегда возвращает nil.
func (Noop) Publish(context.Context, Event) error { return nil }

// Close ничего не освобождает.
func (Noop) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher пишет события в Kafka. Ключ сообщения равен идентификатору записи,
// поэтому события одной записи попадают в одну партицию.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaPublisher создаёт издателя для списка брокеров через запятую.
func NewKafkaPublisher(brokers string, logger *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(SplitBrokers(brokers)...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

// Publish сериализует событие и записывает его в топик его типа.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := Message(e)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", e.Type, err)
	}

	p.logger.Debug("event published",
		zap.String("eventType", e.Type),
		zap.String("appointmentID", e.Appointment.ID),
	)
	return nil
}

// Close сбрасывает буфер и закрывает соединения.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Message строит сообщение Kafka для события.
func Message(e Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Topic: e.Type,
		Key:   []byte(e.Appointment.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}, nil
}

// SplitBrokers разбирает список адресов брокеров через запятую.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
