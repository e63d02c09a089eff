package orders

import (
	"github.com/shopspring/decimal"
	"time"
)

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ImageRef    string          `json:"imageRef"`
	Rate        decimal.Decimal `json:"rate"`
	Stock       int             `json:"stock"`

	// Subscription terms are set together, and only on subscription products.
	Subscription       bool             `json:"subscription"`
	SubscriptionAmount *decimal.Decimal `json:"subscriptionAmount,omitempty"`
	SubscriptionDays   *int             `json:"subscriptionDays,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p Product) Validate() error {
	var v ValidationError
	switch {
	case p.Name == "":
		v.Add("name", "must not be empty")
	case hasControl(p.Name, ""):
		v.Add("name", "must not contain control characters")
	}
	if hasControl(p.Description, "\n\t") {
		v.Add("description", "must not contain control characters")
	}
	if hasControl(p.ImageRef, "") {
		v.Add("imageRef", "must not contain control characters")
	}
	if p.Rate.IsNegative() {
		v.Add("rate", "must not be negative")
	}
	if p.Stock < 0 {
		v.Add("stock", "must not be negative")
	}
	switch {
	case p.Subscription && (p.SubscriptionAmount == nil || p.SubscriptionDays == nil):
		v.Add("subscription", "amount and duration are required for subscription products")
	case !p.Subscription && (p.SubscriptionAmount != nil || p.SubscriptionDays != nil):
		v.Add("subscription", "amount and duration are only allowed on subscription products")
	}
	if p.SubscriptionAmount != nil && p.SubscriptionAmount.IsNegative() {
		v.Add("subscriptionAmount", "must not be negative")
	}
	if p.SubscriptionDays != nil && *p.SubscriptionDays <= 0 {
		v.Add("subscriptionDays", "must be positive")
	}
	return v.Err()
}

type CustomerInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type DeliveryInfo struct {
	PostalCode  string    `json:"postalCode"`
	HouseNumber string    `json:"houseNumber"`
	DueDate     time.Time `json:"dueDate"`
	TimeWindow  string    `json:"timeWindow,omitempty"`
}

// Order carries order-time copies of the customer and product. Later edits
// to either never reach an existing order.
type Order struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"externalId,omitempty"`

	Customer CustomerInfo `json:"customer"`
	Delivery DeliveryInfo `json:"delivery"`

	ProductID          int64           `json:"productId"`
	ProductName        string          `json:"productName"`
	ProductDescription string          `json:"productDescription"`
	ProductImageRef    string          `json:"productImageRef"`
	Rate               decimal.Decimal `json:"rate"`
	Quantity           int             `json:"quantity"`
	Total              decimal.Decimal `json:"total"`

	PaymentMethod      PaymentMethod  `json:"paymentMethod"`
	PaymentStatus      PaymentStatus  `json:"paymentStatus"`
	DeliveryStatus     DeliveryStatus `json:"deliveryStatus"`
	ActualDeliveryDate *time.Time     `json:"actualDeliveryDate,omitempty"`
	Assignee           string         `json:"assignee,omitempty"`
	DeliveryProof      string         `json:"deliveryProof,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PlaceOrderRequest struct {
	// IdempotencyKey is optional. A repeated key returns the first order.
	IdempotencyKey string
	ProductID      int64
	Quantity       int
	Customer       CustomerInfo
	Delivery       DeliveryInfo
	PaymentMethod  PaymentMethod
}

type DeliveryUpdate struct {
	OrderID            int64
	Status             DeliveryStatus
	ProofRef           string
	ActualDeliveryDate *time.Time
}

type OrderFilter struct {
	DeliveryStatus DeliveryStatus
	Assignee       string
	Limit          int
}

const defaultListLimit = 100

func (f OrderFilter) limit() int {
	if f.Limit <= 0 || f.Limit > defaultListLimit {
		return defaultListLimit
	}
	return f.Limit
}
