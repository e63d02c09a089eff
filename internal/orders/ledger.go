package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"strings"
	"time"
)

// Ledger is the only write path that creates orders and moves product stock.
// It keeps no state between calls; the Store serializes competing orders on
// the product row, so any number of Ledgers may run against the same data.
type Ledger struct {
	Store    Store
	Notifier Notifier
	Now      func() time.Time
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Ledger) notifier() Notifier {
	if l.Notifier == nil {
		return NopNotifier{}
	}
	return l.Notifier
}

// PlaceOrder validates the request, then records the order and decrements
// stock in one transaction. existed is true when the idempotency key matched
// an earlier order; nothing is written in that case. A failed call leaves
// stock and orders untouched and may be retried as a whole.
func (l *Ledger) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (o Order, existed bool, err error) {
	if err := req.Validate(l.now()); err != nil {
		return Order{}, false, err
	}

	err = l.Store.WithinTx(ctx, func(tx Tx) error {
		if req.IdempotencyKey != "" {
			prev, ok, err := tx.FindOrderByExternalID(ctx, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if ok {
				o, existed = prev, true
				return nil
			}
		}

		p, err := tx.LockProduct(ctx, req.ProductID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("product %d: %w", req.ProductID, ErrNotFound)
			}
			return err
		}
		if req.Quantity > p.Stock {
			return &StockError{ProductID: p.ID, Requested: req.Quantity, Available: p.Stock}
		}

		o, err = tx.InsertOrder(ctx, snapshot(req, p))
		if err != nil {
			return err
		}
		return tx.DecrementStock(ctx, p.ID, req.Quantity)
	})

	if errors.Is(err, ErrAlreadyExists) {
		// lost a race on the same idempotency key; the winner's order stands
		prev, ok, ferr := l.Store.FindOrderByExternalID(ctx, req.IdempotencyKey)
		if ferr != nil {
			return Order{}, false, persistence("place order", ferr)
		}
		if ok {
			return prev, true, nil
		}
	}
	if err != nil {
		return Order{}, false, persistence("place order", err)
	}

	if !existed {
		l.notifier().OrderPlaced(ctx, o)
	}
	return o, existed, nil
}

func snapshot(req PlaceOrderRequest, p Product) Order {
	d := req.Delivery
	d.DueDate = calendarDay(d.DueDate)
	return Order{
		ExternalID:         req.IdempotencyKey,
		Customer:           req.Customer,
		Delivery:           d,
		ProductID:          p.ID,
		ProductName:        p.Name,
		ProductDescription: p.Description,
		ProductImageRef:    p.ImageRef,
		Rate:               p.Rate,
		Quantity:           req.Quantity,
		Total:              p.Rate.Mul(decimal.NewFromInt(int64(req.Quantity))),
		PaymentMethod:      req.PaymentMethod,
		PaymentStatus:      InitialPaymentStatus(req.PaymentMethod),
		DeliveryStatus:     DeliveryPending,
	}
}

func (l *Ledger) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, err := l.Store.GetOrder(ctx, id)
	if err != nil {
		return Order{}, persistence("get order", err)
	}
	return o, nil
}

func (l *Ledger) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	if f.DeliveryStatus != "" && !f.DeliveryStatus.Valid() {
		return nil, invalid("deliveryStatus", "must be one of pending, completed")
	}
	f.Limit = f.limit()
	out, err := l.Store.ListOrders(ctx, f)
	if err != nil {
		return nil, persistence("list orders", err)
	}
	return out, nil
}

// AttachProof records the delivery-proof reference of a pending order.
func (l *Ledger) AttachProof(ctx context.Context, id int64, ref string) (Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Order{}, invalid("proofRef", "must not be empty")
	}
	o, err := l.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.DeliveryStatus != DeliveryPending {
		return Order{}, invalid("proofRef", "delivery is already completed")
	}
	if err := l.Store.SetDeliveryProof(ctx, id, ref); err != nil {
		return Order{}, persistence("attach proof", err)
	}
	return l.GetOrder(ctx, id)
}

// UpdateDeliveryStatus applies the single allowed transition, pending to
// completed, which needs a proof reference either already attached or
// supplied with the update. A rejected update leaves the order unchanged.
func (l *Ledger) UpdateDeliveryStatus(ctx context.Context, u DeliveryUpdate) (Order, error) {
	if !u.Status.Valid() {
		return Order{}, invalid("status", "must be one of pending, completed")
	}
	o, err := l.GetOrder(ctx, u.OrderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.DeliveryStatus, u.Status) {
		return Order{}, invalid("status", fmt.Sprintf("cannot change delivery status from %s to %s", o.DeliveryStatus, u.Status))
	}

	proof := strings.TrimSpace(u.ProofRef)
	if proof == "" {
		proof = o.DeliveryProof
	}
	if proof == "" {
		return Order{}, invalid("proofRef", "a delivery proof is required to complete delivery")
	}

	now := l.now()
	deliveredOn := calendarDay(now)
	if u.ActualDeliveryDate != nil {
		deliveredOn = calendarDay(*u.ActualDeliveryDate)
		if deliveredOn.After(calendarDay(now)) {
			return Order{}, invalid("actualDeliveryDate", "must not be in the future")
		}
	}

	changed, err := l.Store.CompleteDelivery(ctx, u.OrderID, proof, deliveredOn)
	if err != nil {
		return Order{}, persistence("complete delivery", err)
	}
	if !changed {
		return Order{}, invalid("status", "order is no longer pending")
	}
	return l.GetOrder(ctx, u.OrderID)
}

func (l *Ledger) AssignStaff(ctx context.Context, id int64, assignee string) (Order, error) {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return Order{}, invalid("assignee", "must not be empty")
	}
	if err := l.Store.SetAssignee(ctx, id, assignee); err != nil {
		return Order{}, persistence("assign staff", err)
	}
	return l.GetOrder(ctx, id)
}

func (l *Ledger) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := l.Store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, persistence("get product", err)
	}
	return p, nil
}

func (l *Ledger) ListProducts(ctx context.Context) ([]Product, error) {
	ps, err := l.Store.ListProducts(ctx)
	if err != nil {
		return nil, persistence("list products", err)
	}
	return ps, nil
}

func (l *Ledger) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	created, err := l.Store.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, persistence("create product", err)
	}
	return created, nil
}
