package orders

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m == PaymentOnline
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// InitialPaymentStatus: cash on delivery is settled on handover, everything
// else waits for an external confirmation.
func InitialPaymentStatus(m PaymentMethod) PaymentStatus {
	if m == PaymentCOD {
		return PaymentCompleted
	}
	return PaymentPending
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryCompleted DeliveryStatus = "completed"
)

func (s DeliveryStatus) Valid() bool {
	return s == DeliveryPending || s == DeliveryCompleted
}

var validNext = map[DeliveryStatus]map[DeliveryStatus]bool{
	DeliveryPending:   {DeliveryCompleted: true},
	DeliveryCompleted: {},
}

func CanTransition(from, to DeliveryStatus) bool {
	return validNext[from][to]
}
