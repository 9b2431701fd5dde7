package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/example/walkup/backend/internal/menu"
	"github.com/example/walkup/backend/internal/models"
	"github.com/example/walkup/backend/internal/mq"
	"github.com/example/walkup/backend/internal/repository"
)

// dayKeyLayout partitions the queue by calendar day.
const dayKeyLayout = "2006-01-02"

// txAttempts bounds retries of a reconciliation whose transaction aborted on
// contention. Business-rule rejections are never retried.
const txAttempts = 3

// QueueService is the ticket-inventory reconciliation engine. Every mutation
// of a ticket's reserved items (create, edit, cancel, bulk clear) goes
// through a single reconcile step that nets the old reservation against the
// new one and applies ticket and ledger writes as one atomic unit.
type QueueService struct {
	store      repository.Store
	classifier *menu.Classifier
	events     mq.Publisher
	log        *logrus.Logger
	loc        *time.Location
	now        func() time.Time
}

// NewQueueService builds the engine. events may be nil, in which case no
// events are published.
func NewQueueService(store repository.Store, classifier *menu.Classifier, events mq.Publisher, log *logrus.Logger, loc *time.Location) *QueueService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if loc == nil {
		loc = time.Local
	}
	return &QueueService{
		store:      store,
		classifier: classifier,
		events:     events,
		log:        log,
		loc:        loc,
		now:        time.Now,
	}
}

// TodayKey returns the current day's partition key in the configured zone.
func (s *QueueService) TodayKey() string {
	return s.now().In(s.loc).Format(dayKeyLayout)
}

// ListQueue returns all tickets for the day ordered by base position,
// defaulting to today when dateKey is empty.
func (s *QueueService) ListQueue(ctx context.Context, dateKey string) (string, []models.Ticket, error) {
	if dateKey == "" {
		dateKey = s.TodayKey()
	}
	tickets, err := s.store.Tickets().ListByDay(ctx, dateKey)
	return dateKey, tickets, err
}

// CreateTicket queues a new waiting ticket at the end of the day's queue and
// reserves inventory for its items. Fails with StockExceededError when the
// ledger cannot cover the reservation.
func (s *QueueService) CreateTicket(ctx context.Context, dateKey string, items models.ItemLines) (*models.Ticket, error) {
	if len(items) == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "items are required")
	}
	if dateKey == "" {
		dateKey = s.TodayKey()
	}
	var created *models.Ticket
	err := s.runReconciliation(ctx, func(tx repository.StoreTx) error {
		pos, err := tx.Tickets().NextPosition(ctx, dateKey)
		if err != nil {
			return err
		}
		if err := s.reconcileLedger(ctx, tx, nil, items); err != nil {
			return err
		}
		ticket := &models.Ticket{
			DateKey:      dateKey,
			BasePosition: pos,
			Status:       models.TicketStatusWaiting,
			Items:        items,
		}
		if err := tx.Tickets().Create(ctx, ticket); err != nil {
			return err
		}
		created = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, "ticket.created", map[string]any{
		"ticketId": created.ID.String(),
		"dateKey":  created.DateKey,
		"position": created.BasePosition,
		"items":    created.Items,
	})
	return created, nil
}

// EditTicketItems replaces a waiting ticket's item lines and reconciles the
// net inventory change. Editing a ready ticket fails ErrInvalidState with no
// mutation.
func (s *QueueService) EditTicketItems(ctx context.Context, dateKey string, id uuid.UUID, items models.ItemLines) (*models.Ticket, error) {
	if dateKey == "" || id == uuid.Nil || items == nil {
		return nil, errors.Wrap(ErrInvalidInput, "id, dateKey and items are required")
	}
	var updated *models.Ticket
	err := s.runReconciliation(ctx, func(tx repository.StoreTx) error {
		ticket, err := tx.Tickets().Find(ctx, dateKey, id)
		if err != nil {
			return err
		}
		if ticket.Status != models.TicketStatusWaiting {
			return ErrInvalidState
		}
		if err := s.reconcileLedger(ctx, tx, ticket.Items, items); err != nil {
			return err
		}
		if err := tx.Tickets().UpdateItems(ctx, dateKey, id, items); err != nil {
			return err
		}
		ticket.Items = items
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, "ticket.updated", map[string]any{
		"ticketId": updated.ID.String(),
		"dateKey":  updated.DateKey,
		"items":    updated.Items,
	})
	return updated, nil
}

// CancelTicket removes one ticket. A waiting ticket's reservation is restored
// to the ledger in the same transaction; a ready ticket's consumption is
// final, so its removal touches no inventory.
func (s *QueueService) CancelTicket(ctx context.Context, dateKey string, id uuid.UUID) error {
	if dateKey == "" || id == uuid.Nil {
		return errors.Wrap(ErrInvalidInput, "date and id are required")
	}
	err := s.runReconciliation(ctx, func(tx repository.StoreTx) error {
		ticket, err := tx.Tickets().Find(ctx, dateKey, id)
		if err != nil {
			return err
		}
		if ticket.Status == models.TicketStatusWaiting {
			if err := s.reconcileLedger(ctx, tx, ticket.Items, nil); err != nil {
				return err
			}
		}
		return tx.Tickets().Delete(ctx, dateKey, id)
	})
	if err != nil {
		return err
	}
	s.publishEvent(ctx, "ticket.cancelled", map[string]any{
		"ticketId": id.String(),
		"dateKey":  dateKey,
	})
	return nil
}

// ClearWaiting removes every waiting ticket for today and restores their
// combined reservations with one consolidated ledger update instead of one
// per ticket. Ready tickets are preserved. Returns the day key and the number
// of tickets removed.
func (s *QueueService) ClearWaiting(ctx context.Context) (string, int, error) {
	dateKey := s.TodayKey()
	removed := 0
	err := s.runReconciliation(ctx, func(tx repository.StoreTx) error {
		removed = 0
		tickets, err := tx.Tickets().ListByDay(ctx, dateKey)
		if err != nil {
			return err
		}
		var combined models.ItemLines
		for _, ticket := range tickets {
			if ticket.Status != models.TicketStatusWaiting {
				continue
			}
			combined = append(combined, ticket.Items...)
			if err := tx.Tickets().Delete(ctx, dateKey, ticket.ID); err != nil {
				return err
			}
			removed++
		}
		if removed == 0 {
			return nil
		}
		return s.reconcileLedger(ctx, tx, combined, nil)
	})
	if err != nil {
		return "", 0, err
	}
	if removed > 0 {
		s.publishEvent(ctx, "queue.cleared", map[string]any{
			"dateKey": dateKey,
			"removed": removed,
		})
	}
	return dateKey, removed, nil
}

// reconcileLedger validates and applies the inventory side of one
// reconciliation: per category, delta = new total - old total, and the
// projected count inventory - delta must stay non-negative. Validation covers
// every category before anything is written; the first failing category in
// the classifier's declared order aborts the transaction.
func (s *QueueService) reconcileLedger(ctx context.Context, tx repository.StoreTx, oldItems, newItems models.ItemLines) error {
	oldQty := oldItems.Totals(s.classifier)
	newQty := newItems.Totals(s.classifier)

	ledger, err := tx.Ledger().Get(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		// First reconciliation on a fresh deployment: materialize the
		// default record so releases are never silently dropped.
		ledger = models.DefaultSettings(s.classifier.Categories())
		if err := tx.Ledger().Save(ctx, ledger); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	delta := make(menu.Counts)
	for _, cat := range s.classifier.Categories() {
		d := newQty[cat] - oldQty[cat]
		if ledger.Inventory[cat]-d < 0 {
			return &StockExceededError{
				Category:        cat,
				Available:       ledger.Inventory[cat],
				Requested:       newQty[cat],
				AlreadyReserved: oldQty[cat],
			}
		}
		if d != 0 {
			delta[cat] = d
		}
	}
	if len(delta) == 0 {
		return nil
	}
	_, err = tx.Ledger().ApplyDelta(ctx, delta)
	return err
}

// runReconciliation executes fn atomically and retries a bounded number of
// times when the transaction aborts on contention. Business-rule rejections
// abort immediately.
func (s *QueueService) runReconciliation(ctx context.Context, fn func(tx repository.StoreTx) error) error {
	op := func() (struct{}, error) {
		err := s.store.InTx(ctx, fn)
		if err != nil && isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(txAttempts),
	)
	return err
}

func (s *QueueService) publishEvent(ctx context.Context, event string, payload map[string]any) {
	if s.events == nil {
		return
	}
	payload["event"] = event
	payload["occurredAt"] = s.now().UTC().Format(time.RFC3339)
	if err := s.events.Publish(ctx, event, payload); err != nil {
		s.log.WithError(err).Warnf("publish %s failed", event)
	}
}
