package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	kafkax "github.com/ariefcatur/go-dairy-orders/internal/kafka"
	"github.com/ariefcatur/go-dairy-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// Handler turns OrderPlaced events into confirmation emails.
type Handler struct {
	Mailer Mailer
	Dedup  Deduper
}

// HandleOrderPlaced is installed as the consumer handler. Undecodable events
// are skipped; a failed send is returned so the consumer retries it.
func (h *Handler) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Printf("[notifier] skip undecodable message at offset %d: %v", m.Offset, err)
		return nil
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		log.Printf("[notifier] skip event %s: %v", env.EventID, err)
		return nil
	}

	if h.Dedup != nil {
		first, err := h.Dedup.Claim(ctx, env.EventID)
		if err != nil {
			// dedup unavailable: send anyway
			log.Printf("[notifier] dedup %s: %v", env.EventID, err)
		} else if !first {
			return nil
		}
	}

	if err := h.Mailer.SendOrderConfirmation(ctx, p.CustomerEmail, confirmation(p)); err != nil {
		if h.Dedup != nil {
			_ = h.Dedup.Release(ctx, env.EventID)
		}
		return fmt.Errorf("send confirmation for order %d: %w", p.OrderID, err)
	}
	log.Printf("[notifier] confirmation sent to %s for order %d", p.CustomerEmail, p.OrderID)
	return nil
}
