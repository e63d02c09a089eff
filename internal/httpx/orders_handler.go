package httpx

import (
	"context"
	"encoding/json"
	"github.com/ariefcatur/go-dairy-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"log"
	"net/http"
	"strconv"
	"time"
)

type Ledger interface {
	PlaceOrder(ctx context.Context, req orders.PlaceOrderRequest) (orders.Order, bool, error)
	GetOrder(ctx context.Context, id int64) (orders.Order, error)
	ListOrders(ctx context.Context, f orders.OrderFilter) ([]orders.Order, error)
	AttachProof(ctx context.Context, id int64, ref string) (orders.Order, error)
	UpdateDeliveryStatus(ctx context.Context, u orders.DeliveryUpdate) (orders.Order, error)
	AssignStaff(ctx context.Context, id int64, assignee string) (orders.Order, error)

	GetProduct(ctx context.Context, id int64) (orders.Product, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
	CreateProduct(ctx context.Context, p orders.Product) (orders.Product, error)
}

// OrderCache holds order views keyed by id. Set must refuse a view older
// than the version it already recorded.
type OrderCache interface {
	Get(ctx context.Context, orderID int64) ([]byte, bool, error)
	Set(ctx context.Context, orderID, version int64, view []byte) (bool, error)
	Invalidate(ctx context.Context, orderID int64) error
}

func viewVersion(o orders.Order) int64 { return o.UpdatedAt.UnixMicro() }

type OrdersHandler struct {
	Ledger Ledger
	Cache  OrderCache // optional
}

type CustomerReq struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type DeliveryReq struct {
	PostalCode  string `json:"postalCode"`
	HouseNumber string `json:"houseNumber"`
	DueDate     string `json:"dueDate"` // YYYY-MM-DD
	TimeWindow  string `json:"timeWindow"`
}

type CreateOrderReq struct {
	ProductID     int64       `json:"productId"`
	Quantity      int         `json:"quantity"`
	Customer      CustomerReq `json:"customer"`
	Delivery      DeliveryReq `json:"delivery"`
	PaymentMethod string      `json:"paymentMethod"`
}

type CreateOrderResp struct {
	OrderID        int64                 `json:"orderId"`
	PaymentStatus  orders.PaymentStatus  `json:"paymentStatus"`
	DeliveryStatus orders.DeliveryStatus `json:"deliveryStatus"`
	Total          decimal.Decimal       `json:"total"`
	Idempotent     bool                  `json:"idempotent"`
}

type DeliveryStatusReq struct {
	Status             string `json:"status"`
	ProofRef           string `json:"proofRef"`
	ActualDeliveryDate string `json:"actualDeliveryDate"` // YYYY-MM-DD, optional
}

type ProofReq struct {
	ProofRef string `json:"proofRef"`
}

type AssigneeReq struct {
	Assignee string `json:"assignee"`
}

type CreateProductReq struct {
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	ImageRef           string           `json:"imageRef"`
	Rate               decimal.Decimal  `json:"rate"`
	Stock              int              `json:"stock"`
	Subscription       bool             `json:"subscription"`
	SubscriptionAmount *decimal.Decimal `json:"subscriptionAmount"`
	SubscriptionDays   *int             `json:"subscriptionDays"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Put("/orders/{id}/proof", h.attachProof)
	r.Patch("/orders/{id}/delivery", h.updateDelivery)
	r.Patch("/orders/{id}/assignee", h.assignStaff)

	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Post("/products", h.createProduct)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "", "invalid json")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "id", "must be a positive integer")
		return 0, false
	}
	return id, true
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(orders.DateLayout, s)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if !decode(w, r, &req) {
		return
	}

	// an empty date is left to the ledger, which reports it with the other fields
	var due time.Time
	if req.Delivery.DueDate != "" {
		d, err := parseDate(req.Delivery.DueDate)
		if err != nil {
			badRequest(w, "delivery.dueDate", "must be a date in YYYY-MM-DD format")
			return
		}
		due = d
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, existed, err := h.Ledger.PlaceOrder(ctx, orders.PlaceOrderRequest{
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Customer:       orders.CustomerInfo(req.Customer),
		Delivery: orders.DeliveryInfo{
			PostalCode:  req.Delivery.PostalCode,
			HouseNumber: req.Delivery.HouseNumber,
			DueDate:     due,
			TimeWindow:  req.Delivery.TimeWindow,
		},
		PaymentMethod: orders.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, CreateOrderResp{
		OrderID:        o.ID,
		PaymentStatus:  o.PaymentStatus,
		DeliveryStatus: o.DeliveryStatus,
		Total:          o.Total,
		Idempotent:     existed,
	})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := orders.OrderFilter{
		DeliveryStatus: orders.DeliveryStatus(q.Get("deliveryStatus")),
		Assignee:       q.Get("assignee"),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(w, "limit", "must be a positive integer")
			return
		}
		f.Limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Ledger.ListOrders(ctx, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.Cache != nil {
		if b, hit, err := h.Cache.Get(ctx, id); err == nil && hit {
			writeJSON(w, http.StatusOK, json.RawMessage(b))
			return
		}
	}

	// 2) database
	o, err := h.Ledger.GetOrder(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		if _, err := h.Cache.Set(ctx, id, viewVersion(o), b); err != nil {
			log.Printf("[api] cache order %d: %v", id, err)
		}
	}
	writeJSON(w, http.StatusOK, json.RawMessage(b))
}

func (h *OrdersHandler) attachProof(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ProofReq
	if !decode(w, r, &req) {
		return
	}

	h.mutate(w, r, id, func(ctx context.Context) (orders.Order, error) {
		return h.Ledger.AttachProof(ctx, id, req.ProofRef)
	})
}

func (h *OrdersHandler) updateDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req DeliveryStatusReq
	if !decode(w, r, &req) {
		return
	}
	u := orders.DeliveryUpdate{
		OrderID:  id,
		Status:   orders.DeliveryStatus(req.Status),
		ProofRef: req.ProofRef,
	}
	if req.ActualDeliveryDate != "" {
		d, err := parseDate(req.ActualDeliveryDate)
		if err != nil {
			badRequest(w, "actualDeliveryDate", "must be a date in YYYY-MM-DD format")
			return
		}
		u.ActualDeliveryDate = &d
	}

	h.mutate(w, r, id, func(ctx context.Context) (orders.Order, error) {
		return h.Ledger.UpdateDeliveryStatus(ctx, u)
	})
}

func (h *OrdersHandler) assignStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req AssigneeReq
	if !decode(w, r, &req) {
		return
	}

	h.mutate(w, r, id, func(ctx context.Context) (orders.Order, error) {
		return h.Ledger.AssignStaff(ctx, id, req.Assignee)
	})
}

// mutate runs a single-order update and writes the new view through to
// the cache, dropping the cached view when that fails.
func (h *OrdersHandler) mutate(w http.ResponseWriter, r *http.Request, id int64, fn func(ctx context.Context) (orders.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := fn(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		h.refresh(ctx, o)
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) refresh(ctx context.Context, o orders.Order) {
	b, err := json.Marshal(o)
	if err == nil {
		_, err = h.Cache.Set(ctx, o.ID, viewVersion(o), b)
	}
	if err == nil {
		return
	}
	log.Printf("[api] cache order %d: %v", o.ID, err)
	if err := h.Cache.Invalidate(ctx, o.ID); err != nil {
		log.Printf("[api] invalidate order %d: %v", o.ID, err)
	}
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Ledger.ListProducts(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Ledger.GetProduct(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *OrdersHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductReq
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Ledger.CreateProduct(ctx, orders.Product{
		Name:               req.Name,
		Description:        req.Description,
		ImageRef:           req.ImageRef,
		Rate:               req.Rate,
		Stock:              req.Stock,
		Subscription:       req.Subscription,
		SubscriptionAmount: req.SubscriptionAmount,
		SubscriptionDays:   req.SubscriptionDays,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
