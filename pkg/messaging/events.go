package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Ledger events
	EventMovementRecorded = "stock.movement.recorded"

	// Alert events
	EventAlertTriggered = "stock.alert.triggered"
	EventAlertResolved  = "stock.alert.resolved"

	// Stock take events
	EventStockTakeCompleted = "stock.take.completed"
)

// Exchange names
const (
	ExchangeStockEvents = "stock.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Ledger Events

// MovementRecordedEvent is published after a stock movement commits
type MovementRecordedEvent struct {
	MovementID   string `json:"movement_id"`
	VariantID    string `json:"variant_id"`
	MovementType string `json:"movement_type"`
	Quantity     int    `json:"quantity"`
	BalanceAfter int    `json:"balance_after"`
	PerformedBy  string `json:"performed_by"`
	Reason       string `json:"reason,omitempty"`
	Reference    string `json:"reference,omitempty"`
}

// Alert Events

// AlertTriggeredEvent is published when stock crosses below a threshold
type AlertTriggeredEvent struct {
	AlertID      string `json:"alert_id"`
	VariantID    string `json:"variant_id"`
	SKU          string `json:"sku"`
	Threshold    int    `json:"threshold"`
	CurrentStock int    `json:"current_stock"`
}

// AlertResolvedEvent is published when an alert is acknowledged
type AlertResolvedEvent struct {
	AlertID    string `json:"alert_id"`
	VariantID  string `json:"variant_id"`
	ResolvedBy string `json:"resolved_by"`
}

// Stock Take Events

// StockTakeCompletedEvent is published when a stock take session completes
type StockTakeCompletedEvent struct {
	SessionID         string `json:"session_id"`
	CompletedBy       string `json:"completed_by"`
	ItemsCounted      int    `json:"items_counted"`
	ItemsWithVariance int    `json:"items_with_variance"`
	NetVarianceValue  string `json:"net_variance_value"`
	AdjustmentsMade   bool   `json:"adjustments_made"`
}
