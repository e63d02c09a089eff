package orders

import (
	"context"
	"time"
)

// Store is the persistence boundary of the ledger. Implementations must make
// WithinTx all-or-nothing and hold the row lock taken by Tx.LockProduct until
// the transaction ends.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	FindOrderByExternalID(ctx context.Context, externalID string) (Order, bool, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)
	SetDeliveryProof(ctx context.Context, id int64, ref string) error
	// CompleteDelivery only touches orders still pending and reports whether
	// a row changed.
	CompleteDelivery(ctx context.Context, id int64, proofRef string, deliveredOn time.Time) (bool, error)
	SetAssignee(ctx context.Context, id int64, assignee string) error

	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
}

type Tx interface {
	FindOrderByExternalID(ctx context.Context, externalID string) (Order, bool, error)
	// LockProduct reads the product and locks its row. A missing row is ErrNotFound.
	LockProduct(ctx context.Context, id int64) (Product, error)
	// InsertOrder fills in ID, CreatedAt and UpdatedAt.
	InsertOrder(ctx context.Context, o Order) (Order, error)
	// DecrementStock fails with ErrInsufficientStock instead of going negative.
	DecrementStock(ctx context.Context, productID int64, qty int) error
}

// Notifier receives committed orders. It must not block the caller.
type Notifier interface {
	OrderPlaced(ctx context.Context, o Order)
}

type NopNotifier struct{}

func (NopNotifier) OrderPlaced(context.Context, Order) {}
