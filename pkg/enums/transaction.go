package enums

import "fmt"

// TransactionType records which side of the trade a record documents.
type TransactionType string

const (
	TransactionTypeSale     TransactionType = "SALE"
	TransactionTypePurchase TransactionType = "PURCHASE"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeSale,
	TransactionTypePurchase,
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}

// TransactionStatus flips only on an explicit reversal.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusCancelled
}
