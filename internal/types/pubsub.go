package types

// PubSubType defines the type of pubsub implementation
type PubSubType string

const (
	// MemoryPubSub uses in-memory implementation
	MemoryPubSub PubSubType = "memory"

	// KafkaPubSub uses Kafka implementation
	KafkaPubSub PubSubType = "kafka"
)

// Event names carried by outbox messages
const (
	EventPaymentConfirmed = "payment.confirmed"
	EventPaymentReceipt   = "payment.receipt"
)

// Message metadata keys
const (
	MetadataKeyEventName = "event_name"
	MetadataKeyInvoiceID = "invoice_id"
	MetadataKeyPaymentID = "payment_id"
)
