package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-dairy-orders/internal/orders"
	"github.com/ariefcatur/go-dairy-orders/internal/orders/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var testNow = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	placed []orders.Order
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, o orders.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.placed = append(n.placed, o)
}

func (n *recordingNotifier) calls() []orders.Order {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]orders.Order(nil), n.placed...)
}

func newTestLedger() (*orders.Ledger, *mocks.Store, *recordingNotifier) {
	store := mocks.NewStore()
	notifier := &recordingNotifier{}
	ledger := &orders.Ledger{
		Store:    store,
		Notifier: notifier,
		Now:      func() time.Time { return testNow },
	}
	return ledger, store, notifier
}

func seedMilk(store *mocks.Store, stock int) orders.Product {
	return store.AddProduct(orders.Product{
		ID:          1,
		Name:        "Full Cream Milk 1L",
		Description: "Fresh from the farm",
		ImageRef:    "img/milk.png",
		Rate:        decimal.NewFromInt(50),
		Stock:       stock,
	})
}

func validRequest(productID int64, qty int) orders.PlaceOrderRequest {
	return orders.PlaceOrderRequest{
		ProductID: productID,
		Quantity:  qty,
		Customer: orders.CustomerInfo{
			Name:  "Asha Patel",
			Phone: "9876543210",
			Email: "asha@example.com",
		},
		Delivery: orders.DeliveryInfo{
			PostalCode:  "560001",
			HouseNumber: "12B",
			DueDate:     testNow.AddDate(0, 0, 2),
			TimeWindow:  "07:00-09:00",
		},
		PaymentMethod: orders.PaymentCOD,
	}
}

// ============================================
// PlaceOrder Tests
// ============================================

func TestLedger_PlaceOrder_EndToEnd(t *testing.T) {
	ledger, store, notifier := newTestLedger()
	seedMilk(store, 10)

	o, existed, err := ledger.PlaceOrder(context.Background(), validRequest(1, 4))

	require.NoError(t, err)
	assert.False(t, existed)
	assert.NotZero(t, o.ID)
	assert.Equal(t, orders.PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, orders.DeliveryPending, o.DeliveryStatus)
	assert.Equal(t, "Full Cream Milk 1L", o.ProductName)
	assert.Equal(t, "img/milk.png", o.ProductImageRef)
	assert.True(t, decimal.NewFromInt(50).Equal(o.Rate))
	assert.True(t, decimal.NewFromInt(200).Equal(o.Total))
	assert.Equal(t, 6, store.Stock(1))
	assert.Len(t, store.Orders(), 1)
	require.Len(t, notifier.calls(), 1)
	assert.Equal(t, o.ID, notifier.calls()[0].ID)
}

func TestLedger_PlaceOrder_OnlinePaymentStartsPending(t *testing.T) {
	ledger, store, _ := newTestLedger()
	seedMilk(store, 10)

	req := validRequest(1, 1)
	req.PaymentMethod = orders.PaymentOnline
	o, _, err := ledger.PlaceOrder(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
}

func TestLedger_PlaceOrder_SnapshotSurvivesProductEdit(t *testing.T) {
	ledger, store, _ := newTestLedger()
	seedMilk(store, 10)

	o, _, err := ledger.PlaceOrder(context.Background(), validRequest(1, 1))
	require.NoError(t, err)

	store.AddProduct(orders.Product{ID: 1, Name: "Renamed", Rate: decimal.NewFromInt(99), Stock: 9})

	got, err := ledger.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Full Cream Milk 1L", got.ProductName)
	assert.True(t, decimal.NewFromInt(50).Equal(got.Rate))
}

func TestLedger_PlaceOrder_InvalidQuantity(t *testing.T) {
	for _, qty := range []int{0, -3} {
		ledger, store, notifier := newTestLedger()
		seedMilk(store, 10)

		_, _, err := ledger.PlaceOrder(context.Background(), validRequest(1, qty))

		var verr *orders.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.True(t, verr.HasField("quantity"))
		assert.Equal(t, 10, store.Stock(1))
		assert.Empty(t, store.Orders())
		assert.Empty(t, notifier.calls())
		assert.Zero(t, store.Commits+store.Rollbacks, "validation must fail before any transaction")
	}
}

func TestLedger_PlaceOrder_ProductNotFound(t *testing.T) {
	ledger, store, _ := newTestLedger()
	seedMilk(store, 10)

	for _, id := range []int64{42, 0, -3} {
		_, _, err := ledger.PlaceOrder(context.Background(), validRequest(id, 1))

		assert.ErrorIs(t, err, orders.ErrNotFound, "product %d", id)
		var verr *orders.ValidationError
		assert.False(t, errors.As(err, &verr), "product %d", id)
	}
	assert.Equal(t, 10, store.Stock(1))
	assert.Empty(t, store.Orders())
}

func TestLedger_PlaceOrder_InvalidPhone(t *testing.T) {
	ledger, store, _ := newTestLedger()
	seedMilk(store, 10)

	req := validRequest(1, 1)
	req.Customer.Phone = "12345"
	_, _, err := ledger.PlaceOrder(context.Background(), req)

	var verr *orders.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []orders.FieldError{{Field: "customer.phone", Message: "must be 10 digits"}}, verr.Fields)
	assert.Empty(t, store.Orders())
}

func TestLedger_PlaceOrder_InsufficientStock(t *testing.T) {
	ledger, store, notifier := newTestLedger()
	seedMilk(store, 2)

	_, _, err := ledger.PlaceOrder(context.Background(), validRequest(1, 3))

	assert.ErrorIs(t, err, orders.ErrInsufficientStock)
	var serr *orders.StockError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 3, serr.Requested)
	assert.Equal(t, 2, serr.Available)
	assert.Equal(t, 2, store.Stock(1))
	assert.Empty(t, store.Orders())
	assert.Empty(t, notifier.calls())
}

func TestLedger_PlaceOrder_ExactStockSucceeds(t *testing.T) {
	ledger, store, _ := newTestLedger()
	seedMilk(store, 3)

	_, _, err := ledger.PlaceOrder(context.Background(), validRequest(1, 3))

	require.NoError(t, err)
	assert.Equal(t, 0, store.Stock(1))
}

func TestLedger_PlaceOrder_ConcurrentOversell(t *testing.T) {
	ledger, store, _ := newTestLedger()
	seedMilk(store, 5)

	var (
		g     errgroup.Group
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i := range errs {
		g.Go(func() error {
			<-start
			_, _, errs[i] = ledger.PlaceOrder(context.Background(), validRequest(1, 3))
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, orders.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 2, store.Stock(1))
	assert.Len(t, store.Orders(), 1)
}

func TestLedger_PlaceOrder_ConcurrentWithinStock(t *testing.T) {
	ledger, store, _ := newTestLedger()
	seedMilk(store, 20)

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, _, err := ledger.PlaceOrder(context.Background(), validRequest(1, 2))
			return err
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, 0, store.Stock(1))
	assert.Len(t, store.Orders(), 10)
}

func TestLedger_PlaceOrder_PersistenceFailureRollsBack(t *testing.T) {
	for _, op := range []string{"InsertOrder", "DecrementStock", "Commit", "WithinTx"} {
		t.Run(op, func(t *testing.T) {
			ledger, store, notifier := newTestLedger()
			seedMilk(store, 10)
			store.Fail(op, errors.New("connection reset"))

			_, _, err := ledger.PlaceOrder(context.Background(), validRequest(1, 4))

			assert.ErrorIs(t, err, orders.ErrPersistence)
			assert.Equal(t, 10, store.Stock(1), "stock must not drift after a failed call")
			assert.Empty(t, store.Orders())
			assert.Empty(t, notifier.calls())

			// the whole call is safe to retry
			store.Fail(op, nil)
			_, _, err = ledger.PlaceOrder(context.Background(), validRequest(1, 4))
			require.NoError(t, err)
			assert.Equal(t, 6, store.Stock(1))
		})
	}
}

func TestLedger_PlaceOrder_IdempotencyKeyReplays(t *testing.T) {
	ledger, store, notifier := newTestLedger()
	seedMilk(store, 10)

	req := validRequest(1, 4)
	req.IdempotencyKey = "checkout-7f3a"
	first, existed, err := ledger.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, existed)

	second, existed, err := ledger.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 6, store.Stock(1))
	assert.Len(t, store.Orders(), 1)
	assert.Len(t, notifier.calls(), 1)
}

func TestLedger_PlaceOrder_ConcurrentSameIdempotencyKey(t *testing.T) {
	ledger, store, _ := newTestLedger()
	seedMilk(store, 10)

	req := validRequest(1, 4)
	req.IdempotencyKey = "checkout-race"

	var g errgroup.Group
	ids := make([]int64, 4)
	for i := range ids {
		g.Go(func() error {
			o, _, err := ledger.PlaceOrder(context.Background(), req)
			ids[i] = o.ID
			return err
		})
	}

	require.NoError(t, g.Wait())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 6, store.Stock(1))
	assert.Len(t, store.Orders(), 1)
}

// ============================================
// Delivery Tests
// ============================================

func placeOne(t *testing.T, ledger *orders.Ledger, store *mocks.Store) orders.Order {
	t.Helper()
	seedMilk(store, 10)
	o, _, err := ledger.PlaceOrder(context.Background(), validRequest(1, 1))
	require.NoError(t, err)
	return o
}

func TestLedger_UpdateDeliveryStatus_RequiresProof(t *testing.T) {
	ledger, store, _ := newTestLedger()
	o := placeOne(t, ledger, store)

	_, err := ledger.UpdateDeliveryStatus(context.Background(), orders.DeliveryUpdate{
		OrderID: o.ID,
		Status:  orders.DeliveryCompleted,
	})

	var verr *orders.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.HasField("proofRef"))

	got, err := ledger.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.DeliveryPending, got.DeliveryStatus)
	assert.Nil(t, got.ActualDeliveryDate)
}

func TestLedger_UpdateDeliveryStatus_WithProof(t *testing.T) {
	ledger, store, _ := newTestLedger()
	o := placeOne(t, ledger, store)

	got, err := ledger.UpdateDeliveryStatus(context.Background(), orders.DeliveryUpdate{
		OrderID:  o.ID,
		Status:   orders.DeliveryCompleted,
		ProofRef: "proofs/abc.jpg",
	})

	require.NoError(t, err)
	assert.Equal(t, orders.DeliveryCompleted, got.DeliveryStatus)
	assert.Equal(t, "proofs/abc.jpg", got.DeliveryProof)
	require.NotNil(t, got.ActualDeliveryDate)
	assert.Equal(t, "2026-10-14", got.ActualDeliveryDate.Format(orders.DateLayout))
}

func TestLedger_UpdateDeliveryStatus_UsesAttachedProof(t *testing.T) {
	ledger, store, _ := newTestLedger()
	o := placeOne(t, ledger, store)

	_, err := ledger.AttachProof(context.Background(), o.ID, "proofs/door.jpg")
	require.NoError(t, err)

	delivered := testNow.AddDate(0, 0, -1)
	got, err := ledger.UpdateDeliveryStatus(context.Background(), orders.DeliveryUpdate{
		OrderID:            o.ID,
		Status:             orders.DeliveryCompleted,
		ActualDeliveryDate: &delivered,
	})

	require.NoError(t, err)
	assert.Equal(t, "proofs/door.jpg", got.DeliveryProof)
	assert.Equal(t, "2026-10-13", got.ActualDeliveryDate.Format(orders.DateLayout))
}

func TestLedger_UpdateDeliveryStatus_RejectsOtherTransitions(t *testing.T) {
	ledger, store, _ := newTestLedger()
	o := placeOne(t, ledger, store)

	_, err := ledger.UpdateDeliveryStatus(context.Background(), orders.DeliveryUpdate{OrderID: o.ID, Status: orders.DeliveryPending})
	var verr *orders.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.HasField("status"))

	_, err = ledger.UpdateDeliveryStatus(context.Background(), orders.DeliveryUpdate{OrderID: o.ID, Status: "shipped"})
	require.ErrorAs(t, err, &verr)

	_, err = ledger.UpdateDeliveryStatus(context.Background(), orders.DeliveryUpdate{OrderID: o.ID, Status: orders.DeliveryCompleted, ProofRef: "p.jpg"})
	require.NoError(t, err)

	_, err = ledger.UpdateDeliveryStatus(context.Background(), orders.DeliveryUpdate{OrderID: o.ID, Status: orders.DeliveryCompleted, ProofRef: "p2.jpg"})
	require.ErrorAs(t, err, &verr)

	got, _ := ledger.GetOrder(context.Background(), o.ID)
	assert.Equal(t, "p.jpg", got.DeliveryProof)
}

func TestLedger_UpdateDeliveryStatus_FutureDateRejected(t *testing.T) {
	ledger, store, _ := newTestLedger()
	o := placeOne(t, ledger, store)

	tomorrow := testNow.AddDate(0, 0, 1)
	_, err := ledger.UpdateDeliveryStatus(context.Background(), orders.DeliveryUpdate{
		OrderID: o.ID, Status: orders.DeliveryCompleted, ProofRef: "p.jpg", ActualDeliveryDate: &tomorrow,
	})

	var verr *orders.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.HasField("actualDeliveryDate"))
}

func TestLedger_UpdateDeliveryStatus_NotFound(t *testing.T) {
	ledger, _, _ := newTestLedger()

	_, err := ledger.UpdateDeliveryStatus(context.Background(), orders.DeliveryUpdate{OrderID: 99, Status: orders.DeliveryCompleted, ProofRef: "p.jpg"})

	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestLedger_AttachProof(t *testing.T) {
	ledger, store, _ := newTestLedger()
	o := placeOne(t, ledger, store)

	_, err := ledger.AttachProof(context.Background(), o.ID, "  ")
	var verr *orders.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = ledger.UpdateDeliveryStatus(context.Background(), orders.DeliveryUpdate{OrderID: o.ID, Status: orders.DeliveryCompleted, ProofRef: "p.jpg"})
	require.NoError(t, err)

	_, err = ledger.AttachProof(context.Background(), o.ID, "late.jpg")
	require.ErrorAs(t, err, &verr)
}

// ============================================
// Assignment & Listing Tests
// ============================================

func TestLedger_AssignStaff(t *testing.T) {
	ledger, store, _ := newTestLedger()
	o := placeOne(t, ledger, store)

	got, err := ledger.AssignStaff(context.Background(), o.ID, " Ravi ")
	require.NoError(t, err)
	assert.Equal(t, "Ravi", got.Assignee)

	_, err = ledger.AssignStaff(context.Background(), o.ID, "")
	var verr *orders.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = ledger.AssignStaff(context.Background(), 404, "Ravi")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestLedger_ListOrders(t *testing.T) {
	ledger, store, _ := newTestLedger()
	seedMilk(store, 10)
	ctx := context.Background()

	a, _, err := ledger.PlaceOrder(ctx, validRequest(1, 1))
	require.NoError(t, err)
	b, _, err := ledger.PlaceOrder(ctx, validRequest(1, 1))
	require.NoError(t, err)
	_, err = ledger.AssignStaff(ctx, a.ID, "Ravi")
	require.NoError(t, err)

	all, err := ledger.ListOrders(ctx, orders.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID, "newest first")

	mine, err := ledger.ListOrders(ctx, orders.OrderFilter{Assignee: "Ravi"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	_, err = ledger.ListOrders(ctx, orders.OrderFilter{DeliveryStatus: "lost"})
	var verr *orders.ValidationError
	assert.ErrorAs(t, err, &verr)
}

// ============================================
// Catalog Tests
// ============================================

func TestLedger_CreateProduct(t *testing.T) {
	ledger, _, _ := newTestLedger()
	amount := decimal.NewFromInt(1400)
	days := 30

	p, err := ledger.CreateProduct(context.Background(), orders.Product{
		Name:               "Monthly Milk Plan",
		Rate:               decimal.NewFromInt(50),
		Stock:              100,
		Subscription:       true,
		SubscriptionAmount: &amount,
		SubscriptionDays:   &days,
	})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)

	got, err := ledger.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Monthly Milk Plan", got.Name)

	_, err = ledger.CreateProduct(context.Background(), orders.Product{Name: "Ghee", Rate: decimal.NewFromInt(10), SubscriptionDays: &days})
	var verr *orders.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLedger_GetProduct_StorageFailure(t *testing.T) {
	ledger, store, _ := newTestLedger()
	store.Fail("GetProduct", errors.New("timeout"))

	_, err := ledger.GetProduct(context.Background(), 1)

	assert.ErrorIs(t, err, orders.ErrPersistence)
}
