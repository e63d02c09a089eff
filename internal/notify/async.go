package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ariefcatur/go-dairy-orders/internal/orders"
)

// Sink delivers an order confirmation to the customer.
type Sink interface {
	SendOrderConfirmation(ctx context.Context, orderID int64, customerEmail string, summary orders.OrderPlacedPayload) error
}

// Async is the ledger's Notifier. Each confirmation runs in its own goroutine
// on a context detached from the request; failures are only logged.
type Async struct {
	sink    Sink
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
}

func NewAsync(sink Sink, timeout time.Duration, maxInflight int) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxInflight <= 0 {
		maxInflight = 1
	}
	return &Async{sink: sink, timeout: timeout, slots: make(chan struct{}, maxInflight)}
}

// OrderPlaced returns immediately. When maxInflight sends are already
// running the confirmation is dropped.
func (a *Async) OrderPlaced(ctx context.Context, o orders.Order) {
	select {
	case a.slots <- struct{}{}:
	default:
		log.Printf("[notify] dropped confirmation for order %d: too many in flight", o.ID)
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() { <-a.slots }()

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.sink.SendOrderConfirmation(sctx, o.ID, o.Customer.Email, orders.NewOrderPlacedPayload(o)); err != nil {
			log.Printf("[notify] confirmation for order %d: %v", o.ID, err)
		}
	}()
}

// Wait blocks until every dispatched confirmation has finished.
func (a *Async) Wait() { a.wg.Wait() }
