package events

import (
	"encoding/json"
	"time"

	kafkax "github.com/ariefcatur/go-hardware-checkout/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	EventLowStock       = "LowStock"
	EventOrderFinalized = "OrderFinalized"
)

const (
	TopicLowStock       = "inventory.low_stock"
	TopicOrderFinalized = "order.finalized"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // buy_order or product:branch
	Payload       json.RawMessage `json:"payload"`
}

type OrderFinalizedPayload struct {
	OrderID      int64  `json:"order_id"`
	BuyOrder     string `json:"buy_order"`
	FinalStatus  string `json:"final_status"`
	Amount       int64  `json:"amount"`
	ResponseCode *int   `json:"response_code,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func NewEnvelope(eventType, producer, correlationID string, payload any) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
}

// Headers lets consumers filter without decoding the value.
func (e Envelope) Headers() []kafkago.Header {
	return []kafkago.Header{
		{Key: "x-event-type", Value: []byte(e.EventType)},
		{Key: "x-event-version", Value: []byte("1")},
	}
}

// PartitionKey keeps every event of one correlation id on one partition.
func PartitionKey(correlationID string) []byte { return []byte(correlationID) }
