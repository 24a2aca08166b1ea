package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated     = "OrderCreated"
	EventOrderUpdated     = "OrderUpdated"
	EventOrderLineUpdated = "OrderLineUpdated"
	EventOrderDecided     = "OrderDecided"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type LineQty struct {
	ItemCd string `json:"item_cd"`
	Qty    int64  `json:"qty"`
}

// OrderEventPayload is shared by every lifecycle event; consumers only need
// the status and the touched items.
type OrderEventPayload struct {
	OrderID    int64     `json:"order_id"`
	OrderCd    string    `json:"order_cd"`
	Status     Status    `json:"status"`
	PrevStatus Status    `json:"prev_status,omitempty"`
	BuyerCd    string    `json:"buyer_cd"`
	EmployeeID string    `json:"employee_id"`
	Items      []LineQty `json:"items"`
}

// TopicFor routes an event type to its topic.
func TopicFor(eventType string) string {
	switch eventType {
	case EventOrderCreated:
		return TopicOrderCreated
	case EventOrderLineUpdated:
		return TopicOrderLineUpdated
	case EventOrderDecided:
		return TopicOrderDecided
	default:
		return TopicOrderUpdated
	}
}

func NewEnvelope(producer, eventType string, at time.Time, h *OrderHeader, prev Status, actor string) (Envelope, error) {
	items := make([]LineQty, 0, len(h.Lines))
	for _, l := range h.Lines {
		items = append(items, LineQty{ItemCd: l.ItemCd, Qty: l.Qty})
	}
	payload, err := json.Marshal(OrderEventPayload{
		OrderID:    h.OrderID,
		OrderCd:    h.OrderCd,
		Status:     h.Status,
		PrevStatus: prev,
		BuyerCd:    h.BuyerCd,
		EmployeeID: actor,
		Items:      items,
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: fmt.Sprint(h.OrderID),
		Payload:       payload,
	}, nil
}
