package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

// ForecastRefreshMessage asks the worker to recompute and store a forecast
// snapshot. It carries no transaction data: the worker reads the series
// from storage itself. An empty Kind means both income and expense.
type ForecastRefreshMessage struct {
	ID        uuid.UUID            `json:"id"`
	Kind      core.TransactionKind `json:"kind,omitempty"`
	Months    int                  `json:"months,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// NewForecastRefreshMessage creates a refresh request with a fresh id.
func NewForecastRefreshMessage(kind core.TransactionKind, months int) *ForecastRefreshMessage {
	return &ForecastRefreshMessage{
		ID:        uuid.New(),
		Kind:      kind,
		Months:    months,
		Timestamp: time.Now(),
	}
}

// Kinds returns the transaction kinds the message targets.
func (m *ForecastRefreshMessage) Kinds() []core.TransactionKind {
	if m.Kind == "" {
		return core.TransactionKinds()
	}
	return []core.TransactionKind{m.Kind}
}

// ToJSON converts the message to JSON bytes
func (m *ForecastRefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ForecastRefreshMessageFromJSON decodes and validates a message body.
func ForecastRefreshMessageFromJSON(data []byte) (*ForecastRefreshMessage, error) {
	var msg ForecastRefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind != "" && !msg.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, msg.Kind)
	}
	if msg.Months < 0 {
		return nil, fmt.Errorf("negative months: %d", msg.Months)
	}
	return &msg, nil
}
