package worker

import (
	"context"
	"fmt"
	"log"

	"agrimarket/internal/broker"
	"agrimarket/internal/models"
	"agrimarket/internal/service"
)

// CRMWorker consumes order events and keeps the CRM log in sync: every
// committed order with a known farmer and agrovet becomes a "purchase"
// interaction, so the customer roll-up reflects POS and marketplace sales
// without the checkout path writing CRM rows itself.
type CRMWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	crm          *service.CRMService
}

// NewCRMWorker creates a new CRM worker
func NewCRMWorker(consumer *broker.Consumer, crm *service.CRMService) *CRMWorker {
	w := &CRMWorker{
		consumer: consumer,
		crm:      crm,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	eventHandler.OnLowStock(w.handleLowStock)
	w.eventHandler = eventHandler

	return w
}

func (w *CRMWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	// Walk-in POS sales and orders without a fulfilling agrovet carry no
	// customer relationship to record.
	if event.FarmerID == nil || event.AgrovetID == nil {
		return nil
	}

	notes := fmt.Sprintf("Order #%d, total %s", event.OrderID, event.TotalAmount.StringFixed(2))
	_, err := w.crm.RecordInteraction(ctx, *event.AgrovetID, *event.FarmerID, "purchase", notes)
	if err != nil {
		log.Printf("Failed to record purchase interaction for order %d: %v", event.OrderID, err)
		return err
	}
	return nil
}

func (w *CRMWorker) handleLowStock(ctx context.Context, event *models.LowStockEvent) error {
	// Restock notifications go out-of-band for now; the log line is what the
	// operators watch.
	log.Printf("Low stock: product=%d (%s) agrovet=%d remaining=%d",
		event.ProductID, event.Name, event.AgrovetID, event.Remaining)
	return nil
}

// Start starts the worker
func (w *CRMWorker) Start(ctx context.Context) error {
	log.Println("Starting CRM worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CRMWorker) Stop() error {
	log.Println("Stopping CRM worker...")
	return w.consumer.Close()
}
