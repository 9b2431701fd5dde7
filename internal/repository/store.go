package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/example/walkup/backend/internal/menu"
	"github.com/example/walkup/backend/internal/models"
)

// ErrNotFound is returned when a ticket or the settings record is absent.
var ErrNotFound = errors.New("record not found")

// TicketStore provides persistence access for tickets within day partitions.
type TicketStore interface {
	// ListByDay returns all tickets for the day ordered ascending by base position.
	ListByDay(ctx context.Context, dateKey string) ([]models.Ticket, error)
	// Find returns the ticket or ErrNotFound.
	Find(ctx context.Context, dateKey string, id uuid.UUID) (*models.Ticket, error)
	// Create persists a new ticket, assigning its ID when unset.
	Create(ctx context.Context, ticket *models.Ticket) error
	// UpdateItems replaces the ticket's item lines and stamps UpdatedAt.
	UpdateItems(ctx context.Context, dateKey string, id uuid.UUID, items models.ItemLines) error
	// Delete removes the ticket, ErrNotFound when absent.
	Delete(ctx context.Context, dateKey string, id uuid.UUID) error
	// NextPosition returns the next free base position for the day.
	NextPosition(ctx context.Context, dateKey string) (int, error)
}

// LedgerStore provides access to the singleton settings/inventory record.
// ApplyDelta is the only write path for inventory counts; Save exists for the
// settings surface (service hours, buffer, restock) and must not be used by
// reconciliation code.
type LedgerStore interface {
	// Get returns the settings record or ErrNotFound when never saved.
	Get(ctx context.Context) (*models.Settings, error)
	// Save upserts the whole settings record.
	Save(ctx context.Context, settings *models.Settings) error
	// ApplyDelta subtracts the given reservation delta from the inventory
	// counts and returns the updated counts. Positive delta reserves units,
	// negative releases them. Fails without writing if any count would go
	// negative.
	ApplyDelta(ctx context.Context, delta menu.Counts) (menu.Counts, error)
}

// StoreTx is the data access surface available inside a transaction.
type StoreTx interface {
	Tickets() TicketStore
	Ledger() LedgerStore
}

// Store is the root data access handle. InTx runs fn atomically: either every
// write fn performs is visible afterwards, or none is. Reconciliation relies
// on this to keep ticket and ledger writes a single unit.
type Store interface {
	StoreTx
	InTx(ctx context.Context, fn func(tx StoreTx) error) error
}
