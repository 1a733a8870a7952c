package events

import (
	"context"

	"github.com/sokoflow/sokoflow-backend/pkg/logger"
	"github.com/sokoflow/sokoflow-backend/pkg/messaging"
)

// StockEventPublisher publishes stock domain events to the stock.events
// exchange. A nil publisher is a safe no-op, so the service can run
// without a broker in local development.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// Publish publishes an event with the given type as routing key
func (p *StockEventPublisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	return p.publisher.Publish(ctx, eventType, data)
}
