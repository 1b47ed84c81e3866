package service

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog"

    q "github.com/iliyamo/patient-records/internal/queue"
)

// EventPublisher delivers patient lifecycle events.  Implementations must
// not block the request for long; callers treat failures as non-fatal.
type EventPublisher interface {
    PublishPatientEvent(ctx context.Context, ev q.PatientEvent) error
}

// QueuePublisher publishes events to RabbitMQ, opening a connection per
// message.  Messages are persistent on a durable queue.
type QueuePublisher struct {
    URL    string
    Logger zerolog.Logger
}

func NewQueuePublisher(url string, logger zerolog.Logger) *QueuePublisher {
    return &QueuePublisher{URL: url, Logger: logger}
}

// PublishPatientEvent publishes ev to the patient.events queue.  Errors are
// logged and returned so the caller can choose to ignore them.
func (p *QueuePublisher) PublishPatientEvent(ctx context.Context, ev q.PatientEvent) error {
    conn, err := amqp.DialConfig(p.URL, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(3 * time.Second),
    })
    if err != nil {
        p.Logger.Warn().Err(err).Msg("rabbitmq: dial failed")
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.Logger.Warn().Err(err).Msg("rabbitmq: channel open failed")
        return err
    }
    defer func() { _ = ch.Close() }()

    // Idempotent; durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        q.PatientEventsQueue, // name
        true,                 // durable
        false,                // autoDelete
        false,                // exclusive
        false,                // noWait
        nil,                  // args
    ); err != nil {
        p.Logger.Warn().Err(err).Msg("rabbitmq: queue declare failed")
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }

    if err := ch.PublishWithContext(ctx,
        "",                   // default exchange
        q.PatientEventsQueue, // routing key = queue name
        false,                // mandatory
        false,                // immediate
        amqp.Publishing{
            ContentType:  "application/json",
            DeliveryMode: amqp.Persistent,
            Timestamp:    time.Now().UTC(),
            Type:         ev.Type,
            Body:         body,
        },
    ); err != nil {
        p.Logger.Warn().Err(err).Msg("rabbitmq: publish failed")
        return err
    }
    return nil
}

// NopPublisher drops every event.  Used when EVENTS_ENABLED=false.
type NopPublisher struct{}

func (NopPublisher) PublishPatientEvent(context.Context, q.PatientEvent) error { return nil }
