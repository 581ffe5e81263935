package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateStockBalance OutboxAggregateType = "stock_balance"
	AggregateOrder        OutboxAggregateType = "order"
	AggregateTransaction  OutboxAggregateType = "transaction"
	AggregateInvoice      OutboxAggregateType = "invoice"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateStockBalance,
	AggregateOrder,
	AggregateTransaction,
	AggregateInvoice,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the event_type column of outbox_events.
type OutboxEventType string

const (
	EventStockAdjusted        OutboxEventType = "stock_adjusted"
	EventStockTransferred     OutboxEventType = "stock_transferred"
	EventOrderCreated         OutboxEventType = "order_created"
	EventOrderConfirmed       OutboxEventType = "order_confirmed"
	EventOrderRejected        OutboxEventType = "order_rejected"
	EventOrderCancelled       OutboxEventType = "order_cancelled"
	EventTransactionRecorded  OutboxEventType = "transaction_recorded"
	EventTransactionCancelled OutboxEventType = "transaction_cancelled"
	EventInvoiceGenerated     OutboxEventType = "invoice_generated"
	EventInvoicePaid          OutboxEventType = "invoice_paid"
	EventInvoiceStatusChanged OutboxEventType = "invoice_status_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventStockAdjusted,
	EventStockTransferred,
	EventOrderCreated,
	EventOrderConfirmed,
	EventOrderRejected,
	EventOrderCancelled,
	EventTransactionRecorded,
	EventTransactionCancelled,
	EventInvoiceGenerated,
	EventInvoicePaid,
	EventInvoiceStatusChanged,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason explains why the publisher stopped retrying an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

// IsValid reports whether the value is a known dead-letter reason.
func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
