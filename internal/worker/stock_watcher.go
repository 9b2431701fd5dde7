package worker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/example/walkup/backend/internal/menu"
	"github.com/example/walkup/backend/internal/mq"
	"github.com/example/walkup/backend/internal/repository"
)

// StockWatcher periodically compares available inventory against the
// configured per-category safety buffer and raises a stock.low event when a
// category drops below it. The reconciliation engine itself never enforces
// the buffer; this watcher is its only consumer.
type StockWatcher struct {
	store      repository.Store
	classifier *menu.Classifier
	events     mq.Publisher
	interval   time.Duration
	log        *logrus.Logger
	low        map[menu.Category]bool
}

// NewStockWatcher creates the watcher. events may be nil; low stock is then
// only logged.
func NewStockWatcher(store repository.Store, classifier *menu.Classifier, events mq.Publisher, interval time.Duration, log *logrus.Logger) *StockWatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StockWatcher{
		store:      store,
		classifier: classifier,
		events:     events,
		interval:   interval,
		log:        log,
		low:        make(map[menu.Category]bool),
	}
}

// Run starts the polling loop and should be launched in its own goroutine.
func (w *StockWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("stock watcher shutting down")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *StockWatcher) poll(ctx context.Context) {
	settings, err := w.store.Ledger().Get(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return
	}
	if err != nil {
		w.log.WithError(err).Warn("read ledger failed")
		return
	}
	for _, cat := range w.classifier.Categories() {
		available := settings.Inventory[cat]
		buffer := settings.Buffer[cat]
		isLow := available < buffer
		if isLow && !w.low[cat] {
			w.log.WithFields(logrus.Fields{
				"category":  cat,
				"available": available,
				"buffer":    buffer,
			}).Warn("inventory below safety buffer")
			w.publish(ctx, cat, available, buffer)
		}
		w.low[cat] = isLow
	}
}

func (w *StockWatcher) publish(ctx context.Context, cat menu.Category, available, buffer int) {
	if w.events == nil {
		return
	}
	payload := map[string]any{
		"event":      "stock.low",
		"category":   cat,
		"available":  available,
		"buffer":     buffer,
		"occurredAt": time.Now().UTC().Format(time.RFC3339),
	}
	if err := w.events.Publish(ctx, "stock.low", payload); err != nil {
		w.log.WithError(err).Warn("publish stock.low failed")
	}
}
