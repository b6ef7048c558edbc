package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TicketRenderer turns a ticket event into artifact locations.
// Implemented by ticket.Generator.
type TicketRenderer interface {
	Generate(ev TicketGenerateEvent) (ticketURL, qrCode string, err error)
}

// ArtifactStore writes generated artifacts back onto the booking row.
// Implemented by repository.BookingRepo.
type ArtifactStore interface {
	UpdateTicketArtifacts(ctx context.Context, id, ticketURL, qrCode string) error
}

// TicketWorker consumes ticket.generate messages, renders the ticket and
// stores the resulting artifact locations on the booking.  Rendering
// failures are logged and the message rejected without requeue so a
// poisoned event cannot loop; the artifact can be regenerated on demand
// because confirmation never depended on it.
type TicketWorker struct {
	url      string
	renderer TicketRenderer
	store    ArtifactStore
}

// NewTicketWorker builds a worker for the given AMQP URL.
func NewTicketWorker(url string, renderer TicketRenderer, store ArtifactStore) *TicketWorker {
	return &TicketWorker{url: url, renderer: renderer, store: store}
}

// Run connects to RabbitMQ, declares the durable ticket.generate queue
// and consumes it until the process exits.  It runs a reconnect loop with
// exponential backoff so a broker outage never kills the worker; the
// server starts it in its own goroutine.
func (w *TicketWorker) Run() error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(w.url)
		if err != nil {
			log.Printf("ticket-worker: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := w.consumeLoop(conn); err != nil {
			log.Printf("ticket-worker: consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func (w *TicketWorker) consumeLoop(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		log.Printf("ticket-worker: set QoS failed: %v", err)
	}

	if _, err := ch.QueueDeclare(TicketQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(TicketQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := w.handleMessage(d.Body); err != nil {
			log.Printf("ticket-worker: handle message failed: %v", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (w *TicketWorker) handleMessage(body []byte) error {
	var ev TicketGenerateEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	ticketURL, qrCode, err := w.renderer.Generate(ev)
	if err != nil {
		return fmt.Errorf("render ticket %s: %w", ev.Reference, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.store.UpdateTicketArtifacts(ctx, ev.BookingID, ticketURL, qrCode); err != nil {
		return fmt.Errorf("store artifacts for %s: %w", ev.BookingID, err)
	}
	log.Printf("ticket-worker: generated ticket for booking %s (%s)", ev.BookingID, ev.Reference)
	return nil
}
