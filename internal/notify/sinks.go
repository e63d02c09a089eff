package notify

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-dairy-orders/internal/email"
	kafkax "github.com/ariefcatur/go-dairy-orders/internal/kafka"
	"github.com/ariefcatur/go-dairy-orders/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

var ErrBackpressure = errors.New("event inbox full")

type Publisher interface {
	TryPublish(key, value []byte, headers ...kafkago.Header) bool
}

// EventSink hands confirmations to the notifier process as OrderPlaced events.
type EventSink struct {
	Producer Publisher
	Service  string
}

func (s *EventSink) SendOrderConfirmation(ctx context.Context, orderID int64, customerEmail string, summary orders.OrderPlacedPayload) error {
	summary.OrderID = orderID
	summary.CustomerEmail = customerEmail
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Service,
		CorrelationID: string(orders.PartitionKey(orderID)),
		Payload:       kafkax.MustMarshal(summary),
	}
	ok := s.Producer.TryPublish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPlaced)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	if !ok {
		return ErrBackpressure
	}
	return nil
}

type Mailer interface {
	SendOrderConfirmation(ctx context.Context, to string, c email.Confirmation) error
}

// MailSink sends the email directly, for deployments without Kafka. It
// returns only after the mailer does, so the caller's in-flight slot covers
// the whole SMTP exchange.
type MailSink struct {
	Mailer Mailer
}

func (s *MailSink) SendOrderConfirmation(ctx context.Context, orderID int64, customerEmail string, summary orders.OrderPlacedPayload) error {
	summary.OrderID = orderID
	return s.Mailer.SendOrderConfirmation(ctx, customerEmail, confirmation(summary))
}

func confirmation(p orders.OrderPlacedPayload) email.Confirmation {
	return email.Confirmation{
		OrderID:       p.OrderID,
		CustomerName:  p.CustomerName,
		ProductName:   p.ProductName,
		Quantity:      p.Quantity,
		Rate:          p.Rate.StringFixed(2),
		Total:         p.Total.StringFixed(2),
		DueDate:       p.DueDate,
		PaymentStatus: string(p.PaymentStatus),
	}
}
