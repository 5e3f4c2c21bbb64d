package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// CareLogEvent announces a newly persisted care log to downstream consumers
// such as agency record systems.
type CareLogEvent struct {
	ID               uint      `json:"id"`
	Username         string    `json:"username"`
	OriginalFilename string    `json:"original_filename"`
	TxtPath          string    `json:"txt_path"`
	PdfPath          string    `json:"pdf_path"`
	CreatedAt        time.Time `json:"created_at"`
}

type CareLogPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewCareLogPublisher(conn *amqp.Connection, queueName string) *CareLogPublisher {
	return &CareLogPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *CareLogPublisher) Publish(ctx context.Context, event CareLogEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, p.queueName); err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	body, err := encodeEvent(event)
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         "carelog.created",
			Timestamp:    event.CreatedAt,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish care log event failed: %w", err)
	}
	return nil
}

func encodeEvent(event CareLogEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal care log event failed: %w", err)
	}
	return payload, nil
}
