package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/walkup/backend/internal/menu"
	"github.com/example/walkup/backend/internal/models"
	"github.com/example/walkup/backend/internal/repository"
)

const testDay = "2026-03-14"

func newTestService(t *testing.T) (*QueueService, *repository.Memory) {
	t.Helper()
	store := repository.NewMemory()
	logger := logrus.New()
	svc := NewQueueService(store, menu.DefaultClassifier(), nil, logger, time.UTC)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	}
	return svc, store
}

func seedLedger(t *testing.T, store *repository.Memory, inventory menu.Counts) {
	t.Helper()
	settings := models.DefaultSettings(menu.DefaultClassifier().Categories())
	for cat, n := range inventory {
		settings.Inventory[cat] = n
	}
	require.NoError(t, store.Ledger().Save(context.Background(), settings))
}

func seedTicket(t *testing.T, store *repository.Memory, status models.TicketStatus, pos int, items models.ItemLines) uuid.UUID {
	t.Helper()
	ticket := &models.Ticket{
		DateKey:      testDay,
		BasePosition: pos,
		Status:       status,
		Items:        items,
	}
	require.NoError(t, store.Tickets().Create(context.Background(), ticket))
	return ticket.ID
}

func ledgerInventory(t *testing.T, store *repository.Memory) menu.Counts {
	t.Helper()
	settings, err := store.Ledger().Get(context.Background())
	require.NoError(t, err)
	return settings.Inventory
}

func TestCreateTicketReservesInventory(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryBun: 10})

	ticket, err := svc.CreateTicket(context.Background(), testDay, models.ItemLines{{Name: "Butter Bun", Qty: 2}})
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.NotEqual(t, uuid.Nil, ticket.ID)
	assert.Equal(t, models.TicketStatusWaiting, ticket.Status)
	assert.Equal(t, 1, ticket.BasePosition)

	assert.Equal(t, 8, ledgerInventory(t, store)[menu.CategoryBun])
}

func TestCreateTicketStockExceeded(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 1})

	_, err := svc.CreateTicket(context.Background(), testDay, models.ItemLines{{Name: "Masala Chai", Qty: 2}})
	var stock *StockExceededError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, menu.CategoryChai, stock.Category)
	assert.Equal(t, 1, stock.Available)
	assert.Equal(t, 2, stock.Requested)
	assert.Equal(t, 0, stock.AlreadyReserved)

	// Nothing committed: no ticket, ledger untouched.
	tickets, err := store.Tickets().ListByDay(context.Background(), testDay)
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Equal(t, 1, ledgerInventory(t, store)[menu.CategoryChai])
}

func TestCreateTicketAssignsIncreasingPositions(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 10})

	first, err := svc.CreateTicket(context.Background(), testDay, models.ItemLines{{Name: "chai", Qty: 1}})
	require.NoError(t, err)
	second, err := svc.CreateTicket(context.Background(), testDay, models.ItemLines{{Name: "chai", Qty: 1}})
	require.NoError(t, err)

	assert.Equal(t, 1, first.BasePosition)
	assert.Equal(t, 2, second.BasePosition)
}

func TestCreateTicketRequiresItems(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateTicket(context.Background(), testDay, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEditTicketAtomicRejection(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 2})
	id := seedTicket(t, store, models.TicketStatusWaiting, 1, models.ItemLines{{Name: "chai", Qty: 1}})

	_, err := svc.EditTicketItems(context.Background(), testDay, id, models.ItemLines{{Name: "chai", Qty: 5}})
	var stock *StockExceededError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, menu.CategoryChai, stock.Category)
	assert.Equal(t, 2, stock.Available)
	assert.Equal(t, 5, stock.Requested)
	assert.Equal(t, 1, stock.AlreadyReserved)

	// Rejection leaves both halves untouched.
	ticket, findErr := store.Tickets().Find(context.Background(), testDay, id)
	require.NoError(t, findErr)
	assert.Equal(t, models.ItemLines{{Name: "chai", Qty: 1}}, ticket.Items)
	assert.Equal(t, 2, ledgerInventory(t, store)[menu.CategoryChai])
}

func TestEditTicketReconcilesDelta(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 2, menu.CategoryBun: 5})
	id := seedTicket(t, store, models.TicketStatusWaiting, 1, models.ItemLines{{Name: "chai", Qty: 1}, {Name: "bun", Qty: 3}})

	// Release two buns, reserve one more chai.
	updated, err := svc.EditTicketItems(context.Background(), testDay, id, models.ItemLines{{Name: "chai", Qty: 2}, {Name: "bun", Qty: 1}})
	require.NoError(t, err)
	assert.Len(t, updated.Items, 2)

	inv := ledgerInventory(t, store)
	assert.Equal(t, 1, inv[menu.CategoryChai])
	assert.Equal(t, 7, inv[menu.CategoryBun])
}

func TestEditReadyTicketFails(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 5})
	id := seedTicket(t, store, models.TicketStatusReady, 1, models.ItemLines{{Name: "chai", Qty: 2}})

	_, err := svc.EditTicketItems(context.Background(), testDay, id, models.ItemLines{{Name: "chai", Qty: 1}})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 5, ledgerInventory(t, store)[menu.CategoryChai])
}

func TestEditTicketNotFound(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 5})

	_, err := svc.EditTicketItems(context.Background(), testDay, uuid.New(), models.ItemLines{{Name: "chai", Qty: 1}})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 5, ledgerInventory(t, store)[menu.CategoryChai])
}

func TestEditValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.EditTicketItems(context.Background(), "", uuid.New(), models.ItemLines{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.EditTicketItems(context.Background(), testDay, uuid.Nil, models.ItemLines{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.EditTicketItems(context.Background(), testDay, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCancelWaitingRestoresInventory(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryTiramisu: 3})
	id := seedTicket(t, store, models.TicketStatusWaiting, 1, models.ItemLines{{Name: "Tiramisu Slice", Qty: 2}})

	require.NoError(t, svc.CancelTicket(context.Background(), testDay, id))
	assert.Equal(t, 5, ledgerInventory(t, store)[menu.CategoryTiramisu])

	_, err := store.Tickets().Find(context.Background(), testDay, id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCancelReadyLeavesLedgerAlone(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 5})
	id := seedTicket(t, store, models.TicketStatusReady, 1, models.ItemLines{{Name: "chai", Qty: 2}})

	require.NoError(t, svc.CancelTicket(context.Background(), testDay, id))
	assert.Equal(t, 5, ledgerInventory(t, store)[menu.CategoryChai])
}

func TestCancelMissingTicketIsNotFoundAndNoOp(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 5})

	err := svc.CancelTicket(context.Background(), testDay, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 5, ledgerInventory(t, store)[menu.CategoryChai])
}

func TestClearWaitingAggregatesRestores(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 5})
	seedTicket(t, store, models.TicketStatusWaiting, 1, models.ItemLines{{Name: "chai", Qty: 2}})
	seedTicket(t, store, models.TicketStatusWaiting, 2, models.ItemLines{{Name: "chai", Qty: 3}})
	readyID := seedTicket(t, store, models.TicketStatusReady, 3, models.ItemLines{{Name: "chai", Qty: 1}})

	dateKey, removed, err := svc.ClearWaiting(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testDay, dateKey)
	assert.Equal(t, 2, removed)

	assert.Equal(t, 10, ledgerInventory(t, store)[menu.CategoryChai])

	tickets, err := store.Tickets().ListByDay(context.Background(), testDay)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, readyID, tickets[0].ID)
	assert.Equal(t, models.TicketStatusReady, tickets[0].Status)
}

func TestClearWaitingEmptyDayIsNoOp(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 5})

	_, removed, err := svc.ClearWaiting(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, 5, ledgerInventory(t, store)[menu.CategoryChai])
}

func TestUnknownItemsNeverTouchInventory(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryBun: 4})

	ticket, err := svc.CreateTicket(context.Background(), testDay, models.ItemLines{
		{Name: "Mystery Juice", Qty: 5},
		{Name: "bun", Qty: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, ledgerInventory(t, store)[menu.CategoryBun])

	require.NoError(t, svc.CancelTicket(context.Background(), testDay, ticket.ID))
	assert.Equal(t, 4, ledgerInventory(t, store)[menu.CategoryBun])
}

func TestNegativeQuantitiesCountAsZero(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 3, menu.CategoryBun: 3})

	_, err := svc.CreateTicket(context.Background(), testDay, models.ItemLines{
		{Name: "chai", Qty: -4},
		{Name: "bun", Qty: 2},
	})
	require.NoError(t, err)

	inv := ledgerInventory(t, store)
	assert.Equal(t, 3, inv[menu.CategoryChai])
	assert.Equal(t, 1, inv[menu.CategoryBun])
}

func TestEndToEndLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryBun: 10})

	ticket, err := svc.CreateTicket(context.Background(), testDay, models.ItemLines{{Name: "bun", Qty: 2}})
	require.NoError(t, err)
	assert.Equal(t, 8, ledgerInventory(t, store)[menu.CategoryBun])

	_, err = svc.EditTicketItems(context.Background(), testDay, ticket.ID, models.ItemLines{{Name: "bun", Qty: 1}})
	require.NoError(t, err)
	assert.Equal(t, 9, ledgerInventory(t, store)[menu.CategoryBun])

	require.NoError(t, svc.CancelTicket(context.Background(), testDay, ticket.ID))
	assert.Equal(t, 10, ledgerInventory(t, store)[menu.CategoryBun])
}

// Conservation: inventory plus the sum of waiting reservations stays constant
// across edits and cancellations.
func TestConservationAcrossOperations(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 10})

	total := func() int {
		inv := ledgerInventory(t, store)[menu.CategoryChai]
		tickets, err := store.Tickets().ListByDay(context.Background(), testDay)
		require.NoError(t, err)
		classifier := menu.DefaultClassifier()
		for _, ticket := range tickets {
			if ticket.Status == models.TicketStatusWaiting {
				inv += ticket.Items.Totals(classifier)[menu.CategoryChai]
			}
		}
		return inv
	}

	first, err := svc.CreateTicket(context.Background(), testDay, models.ItemLines{{Name: "chai", Qty: 4}})
	require.NoError(t, err)
	second, err := svc.CreateTicket(context.Background(), testDay, models.ItemLines{{Name: "chai", Qty: 3}})
	require.NoError(t, err)
	require.Equal(t, 10, total())

	_, err = svc.EditTicketItems(context.Background(), testDay, first.ID, models.ItemLines{{Name: "chai", Qty: 1}})
	require.NoError(t, err)
	assert.Equal(t, 10, total())

	require.NoError(t, svc.CancelTicket(context.Background(), testDay, second.ID))
	assert.Equal(t, 10, total())

	_, _, err = svc.ClearWaiting(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, total())
	assert.Equal(t, 10, ledgerInventory(t, store)[menu.CategoryChai])
}

// Non-negativity: no sequence of operations drives any count below zero.
func TestInventoryNeverGoesNegative(t *testing.T) {
	svc, store := newTestService(t)
	seedLedger(t, store, menu.Counts{menu.CategoryChai: 3})

	ticket, err := svc.CreateTicket(context.Background(), testDay, models.ItemLines{{Name: "chai", Qty: 3}})
	require.NoError(t, err)
	assert.Equal(t, 0, ledgerInventory(t, store)[menu.CategoryChai])

	_, err = svc.CreateTicket(context.Background(), testDay, models.ItemLines{{Name: "chai", Qty: 1}})
	var stock *StockExceededError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, 0, ledgerInventory(t, store)[menu.CategoryChai])

	_, err = svc.EditTicketItems(context.Background(), testDay, ticket.ID, models.ItemLines{{Name: "chai", Qty: 4}})
	require.ErrorAs(t, err, &stock)
	assert.GreaterOrEqual(t, ledgerInventory(t, store)[menu.CategoryChai], 0)
}

func TestListQueueDefaultsToToday(t *testing.T) {
	svc, store := newTestService(t)
	seedTicket(t, store, models.TicketStatusWaiting, 2, models.ItemLines{{Name: "chai", Qty: 1}})
	seedTicket(t, store, models.TicketStatusWaiting, 1, models.ItemLines{{Name: "bun", Qty: 1}})

	dateKey, tickets, err := svc.ListQueue(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, testDay, dateKey)
	require.Len(t, tickets, 2)
	assert.Equal(t, 1, tickets[0].BasePosition)
	assert.Equal(t, 2, tickets[1].BasePosition)
}

func TestCreateAgainstFreshLedgerMaterializesDefaults(t *testing.T) {
	svc, store := newTestService(t)

	// No settings record yet: defaults have zero inventory, so any tracked
	// reservation is rejected but the record is still materialized.
	_, err := svc.CreateTicket(context.Background(), testDay, models.ItemLines{{Name: "chai", Qty: 1}})
	var stock *StockExceededError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, 0, stock.Available)

	_, err = store.Ledger().Get(context.Background())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
