package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate, topic and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry with the configured topic names.
// Stock movements, order lifecycle and billing documents go to separate topics.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.StockTopic == "" {
		return nil, fmt.Errorf("stock topic is required")
	}
	if cfg.OrdersTopic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}
	if cfg.BillingTopic == "" {
		return nil, fmt.Errorf("billing topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}

	stockPayload := func() interface{} { return &payloads.StockAdjustedEvent{} }
	transferPayload := func() interface{} { return &payloads.StockTransferredEvent{} }
	orderStatusPayload := func() interface{} { return &payloads.OrderStatusEvent{} }
	transactionPayload := func() interface{} { return &payloads.TransactionEvent{} }
	invoicePayload := func() interface{} { return &payloads.InvoiceEvent{} }

	for _, desc := range []EventDescriptor{
		{EventType: enums.EventStockAdjusted, AggregateType: enums.AggregateStockBalance, Topic: cfg.StockTopic, PayloadFactory: stockPayload},
		{EventType: enums.EventStockTransferred, AggregateType: enums.AggregateStockBalance, Topic: cfg.StockTopic, PayloadFactory: transferPayload},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, Topic: cfg.OrdersTopic, PayloadFactory: func() interface{} { return &payloads.OrderCreatedEvent{} }},
		{EventType: enums.EventOrderConfirmed, AggregateType: enums.AggregateOrder, Topic: cfg.OrdersTopic, PayloadFactory: orderStatusPayload},
		{EventType: enums.EventOrderRejected, AggregateType: enums.AggregateOrder, Topic: cfg.OrdersTopic, PayloadFactory: orderStatusPayload},
		{EventType: enums.EventOrderCancelled, AggregateType: enums.AggregateOrder, Topic: cfg.OrdersTopic, PayloadFactory: orderStatusPayload},
		{EventType: enums.EventTransactionRecorded, AggregateType: enums.AggregateTransaction, Topic: cfg.BillingTopic, PayloadFactory: transactionPayload},
		{EventType: enums.EventTransactionCancelled, AggregateType: enums.AggregateTransaction, Topic: cfg.BillingTopic, PayloadFactory: transactionPayload},
		{EventType: enums.EventInvoiceGenerated, AggregateType: enums.AggregateInvoice, Topic: cfg.BillingTopic, PayloadFactory: invoicePayload},
		{EventType: enums.EventInvoicePaid, AggregateType: enums.AggregateInvoice, Topic: cfg.BillingTopic, PayloadFactory: invoicePayload},
		{EventType: enums.EventInvoiceStatusChanged, AggregateType: enums.AggregateInvoice, Topic: cfg.BillingTopic, PayloadFactory: invoicePayload},
	} {
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Topics lists the distinct topics the registry publishes to.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	topics := []string{}
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	return topics
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
