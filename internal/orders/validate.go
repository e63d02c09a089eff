package orders

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"
)

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// Validate checks a request against the clock's current date. All failures
// are reported together.
func (r PlaceOrderRequest) Validate(now time.Time) error {
	var v ValidationError
	if r.Quantity <= 0 {
		v.Add("quantity", "must be a positive integer")
	}
	validateCustomer(&v, r.Customer)
	validateDelivery(&v, r.Delivery, now)
	if !r.PaymentMethod.Valid() {
		v.Add("paymentMethod", "must be one of cod, online")
	}
	return v.Err()
}

func validateCustomer(v *ValidationError, c CustomerInfo) {
	switch {
	case strings.TrimSpace(c.Name) == "":
		v.Add("customer.name", "must not be empty")
	case hasControl(c.Name, ""):
		v.Add("customer.name", "must not contain control characters")
	}
	if !phonePattern.MatchString(c.Phone) {
		v.Add("customer.phone", "must be 10 digits")
	}
	if !validEmail(c.Email) {
		v.Add("customer.email", "must be a valid email address")
	}
}

func validateDelivery(v *ValidationError, d DeliveryInfo, now time.Time) {
	if strings.TrimSpace(d.PostalCode) == "" {
		v.Add("delivery.postalCode", "must not be empty")
	}
	if strings.TrimSpace(d.HouseNumber) == "" {
		v.Add("delivery.houseNumber", "must not be empty")
	}
	switch {
	case d.DueDate.IsZero():
		v.Add("delivery.dueDate", "is required")
	case calendarDay(d.DueDate).Before(calendarDay(now).AddDate(0, 0, 1)):
		v.Add("delivery.dueDate", "must be at least one day from today")
	}
}

// validEmail accepts a bare local@domain address with a dotted domain.
func validEmail(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return at > 0 && strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// hasControl reports a control character in s other than those in allowed.
func hasControl(s, allowed string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsControl(r) && !strings.ContainsRune(allowed, r)
	}) >= 0
}

// calendarDay keeps only the date as seen in t's own location.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
