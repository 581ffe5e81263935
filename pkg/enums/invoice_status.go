package enums

import "fmt"

// InvoiceStatus tracks the billing document lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusGenerated InvoiceStatus = "GENERATED"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

var validInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusGenerated,
	InvoiceStatusSent,
	InvoiceStatusPaid,
	InvoiceStatusCancelled,
}

// String implements fmt.Stringer.
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known InvoiceStatus.
func (s InvoiceStatus) IsValid() bool {
	for _, candidate := range validInvoiceStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseInvoiceStatus converts raw input into an InvoiceStatus.
func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	for _, candidate := range validInvoiceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice status %q", value)
}

// InvoicePaymentStatus is the settlement flag shown alongside the status.
type InvoicePaymentStatus string

const (
	InvoicePaymentPending InvoicePaymentStatus = "pending"
	InvoicePaymentPaid    InvoicePaymentStatus = "paid"
)

// IsValid reports whether the value is a known InvoicePaymentStatus.
func (s InvoicePaymentStatus) IsValid() bool {
	return s == InvoicePaymentPending || s == InvoicePaymentPaid
}
