package enums

import "fmt"

// StockBucket classifies a balance as resaleable inventory or production input.
type StockBucket string

const (
	StockBucketInventory   StockBucket = "INVENTORY"
	StockBucketRawMaterial StockBucket = "RAW_MATERIAL"
)

var validStockBuckets = []StockBucket{
	StockBucketInventory,
	StockBucketRawMaterial,
}

// String implements fmt.Stringer.
func (b StockBucket) String() string {
	return string(b)
}

// IsValid reports whether the value is a known StockBucket.
func (b StockBucket) IsValid() bool {
	for _, candidate := range validStockBuckets {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseStockBucket converts raw input into a StockBucket.
func ParseStockBucket(value string) (StockBucket, error) {
	for _, candidate := range validStockBuckets {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock bucket %q", value)
}
