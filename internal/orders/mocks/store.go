package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-dairy-orders/internal/orders"
)

// Store is an in-memory orders.Store for tests. Transactions lock product
// rows until they end and only publish their writes on commit, mirroring
// SELECT ... FOR UPDATE under read committed.
type Store struct {
	mu            sync.Mutex
	products      map[int64]orders.Product
	orders        map[int64]orders.Order
	rowLocks      map[int64]chan struct{}
	faults        map[string]error
	nextOrderID   int64
	nextProductID int64

	// For tracking calls in tests
	Commits   int
	Rollbacks int
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		products: make(map[int64]orders.Product),
		orders:   make(map[int64]orders.Order),
		rowLocks: make(map[int64]chan struct{}),
		faults:   make(map[string]error),
	}
}

// AddProduct seeds a product, assigning an id when it has none
func (s *Store) AddProduct(p orders.Product) orders.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		s.nextProductID++
		p.ID = s.nextProductID
	} else if p.ID > s.nextProductID {
		s.nextProductID = p.ID
	}
	s.products[p.ID] = p
	return p
}

// AddOrder seeds an already committed order
func (s *Store) AddOrder(o orders.Order) orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == 0 {
		s.nextOrderID++
		o.ID = s.nextOrderID
	} else if o.ID > s.nextOrderID {
		s.nextOrderID = o.ID
	}
	s.orders[o.ID] = o
	return o
}

// Stock returns the committed stock of a product
func (s *Store) Stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

// Orders returns committed orders by ascending id
func (s *Store) Orders() []orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]orders.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fail makes every later call of op return err. op is a method name of
// orders.Store or orders.Tx, or "Commit". A nil err clears the fault.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faults[op]
}

// ============================================
// Transactions
// ============================================

func (s *Store) WithinTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	if err := s.fault("WithinTx"); err != nil {
		return err
	}
	tx := &tx{s: s, held: map[int64]chan struct{}{}, decrements: map[int64]int{}}
	defer tx.release()

	err := fn(tx)
	if err == nil {
		err = s.fault("Commit")
	}
	if err == nil {
		err = s.commit(tx)
	}
	if err != nil {
		s.mu.Lock()
		s.Rollbacks++
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range t.inserted {
		if o.ExternalID != "" && s.externalIDTaken(o.ExternalID) {
			return orders.ErrAlreadyExists
		}
	}
	for id, qty := range t.decrements {
		if s.products[id].Stock < qty {
			return orders.ErrInsufficientStock
		}
	}
	for id, qty := range t.decrements {
		p := s.products[id]
		p.Stock -= qty
		p.UpdatedAt = time.Now()
		s.products[id] = p
	}
	for _, o := range t.inserted {
		s.orders[o.ID] = o
	}
	s.Commits++
	return nil
}

func (s *Store) externalIDTaken(id string) bool {
	for _, o := range s.orders {
		if o.ExternalID == id {
			return true
		}
	}
	return false
}

func (s *Store) rowLock(id int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rowLocks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.rowLocks[id] = l
	}
	return l
}

type tx struct {
	s          *Store
	held       map[int64]chan struct{}
	inserted   []orders.Order
	decrements map[int64]int
}

func (t *tx) release() {
	for id, l := range t.held {
		<-l
		delete(t.held, id)
	}
}

func (t *tx) FindOrderByExternalID(ctx context.Context, externalID string) (orders.Order, bool, error) {
	for _, o := range t.inserted {
		if o.ExternalID == externalID {
			return o, true, nil
		}
	}
	return t.s.FindOrderByExternalID(ctx, externalID)
}

func (t *tx) LockProduct(ctx context.Context, id int64) (orders.Product, error) {
	if err := t.s.fault("LockProduct"); err != nil {
		return orders.Product{}, err
	}

	t.s.mu.Lock()
	_, exists := t.s.products[id]
	t.s.mu.Unlock()
	if !exists {
		return orders.Product{}, orders.ErrNotFound
	}

	if _, ok := t.held[id]; !ok {
		l := t.s.rowLock(id)
		select {
		case l <- struct{}{}:
			t.held[id] = l
		case <-ctx.Done():
			return orders.Product{}, ctx.Err()
		}
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p := t.s.products[id]
	p.Stock -= t.decrements[id]
	return p, nil
}

func (t *tx) InsertOrder(ctx context.Context, o orders.Order) (orders.Order, error) {
	if err := t.s.fault("InsertOrder"); err != nil {
		return orders.Order{}, err
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if o.ExternalID != "" && t.s.externalIDTaken(o.ExternalID) {
		return orders.Order{}, orders.ErrAlreadyExists
	}
	t.s.nextOrderID++
	o.ID = t.s.nextOrderID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	t.inserted = append(t.inserted, o)
	return o, nil
}

func (t *tx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	if err := t.s.fault("DecrementStock"); err != nil {
		return err
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.products[productID]
	if !ok {
		return orders.ErrNotFound
	}
	if p.Stock-t.decrements[productID] < qty {
		return orders.ErrInsufficientStock
	}
	t.decrements[productID] += qty
	return nil
}

// ============================================
// Single-statement operations
// ============================================

func (s *Store) FindOrderByExternalID(ctx context.Context, externalID string) (orders.Order, bool, error) {
	if err := s.fault("FindOrderByExternalID"); err != nil {
		return orders.Order{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ExternalID == externalID {
			return o, true, nil
		}
	}
	return orders.Order{}, false, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	if err := s.fault("GetOrder"); err != nil {
		return orders.Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("order %d: %w", id, orders.ErrNotFound)
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	if err := s.fault("ListOrders"); err != nil {
		return nil, err
	}
	all := s.Orders()
	out := make([]orders.Order, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		o := all[i]
		if f.DeliveryStatus != "" && o.DeliveryStatus != f.DeliveryStatus {
			continue
		}
		if f.Assignee != "" && o.Assignee != f.Assignee {
			continue
		}
		out = append(out, o)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SetDeliveryProof(ctx context.Context, id int64, ref string) error {
	if err := s.fault("SetDeliveryProof"); err != nil {
		return err
	}
	return s.updateOrder(id, func(o *orders.Order) { o.DeliveryProof = ref })
}

func (s *Store) CompleteDelivery(ctx context.Context, id int64, proofRef string, deliveredOn time.Time) (bool, error) {
	if err := s.fault("CompleteDelivery"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.DeliveryStatus != orders.DeliveryPending {
		return false, nil
	}
	o.DeliveryStatus = orders.DeliveryCompleted
	o.DeliveryProof = proofRef
	o.ActualDeliveryDate = &deliveredOn
	o.UpdatedAt = time.Now()
	s.orders[id] = o
	return true, nil
}

func (s *Store) SetAssignee(ctx context.Context, id int64, assignee string) error {
	if err := s.fault("SetAssignee"); err != nil {
		return err
	}
	return s.updateOrder(id, func(o *orders.Order) { o.Assignee = assignee })
}

func (s *Store) updateOrder(id int64, fn func(o *orders.Order)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, orders.ErrNotFound)
	}
	fn(&o)
	o.UpdatedAt = time.Now()
	s.orders[id] = o
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (orders.Product, error) {
	if err := s.fault("GetProduct"); err != nil {
		return orders.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return orders.Product{}, fmt.Errorf("product %d: %w", id, orders.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	if err := s.fault("ListProducts"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p orders.Product) (orders.Product, error) {
	if err := s.fault("CreateProduct"); err != nil {
		return orders.Product{}, err
	}
	p.ID = 0
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	return s.AddProduct(p), nil
}
