package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/walkup/backend/internal/menu"
	"github.com/example/walkup/backend/internal/models"
)

// Gorm is the Postgres-backed Store. Transactions opened through InTx run at
// serializable isolation so two concurrent reconciliations can never both
// read the same inventory count and both decrement it.
type Gorm struct {
	db *gorm.DB
}

var _ Store = (*Gorm)(nil)

// NewGorm constructs a store using the provided gorm DB.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// Tickets returns ticket access bound to this store's connection or transaction.
func (g *Gorm) Tickets() TicketStore {
	return &gormTickets{db: g.db}
}

// Ledger returns settings access bound to this store's connection or transaction.
func (g *Gorm) Ledger() LedgerStore {
	return &gormLedger{db: g.db}
}

// InTx runs fn inside a serializable transaction. A serialization failure
// aborts the whole unit and surfaces as an error for the caller to retry.
func (g *Gorm) InTx(ctx context.Context, fn func(tx StoreTx) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

type gormTickets struct {
	db *gorm.DB
}

func (r *gormTickets) ListByDay(ctx context.Context, dateKey string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Where("date_key = ?", dateKey).
		Order("base_position asc").
		Find(&tickets).Error
	return tickets, errors.WithStack(err)
}

func (r *gormTickets) Find(ctx context.Context, dateKey string, id uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		First(&ticket, "date_key = ? AND id = ?", dateKey, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &ticket, nil
}

func (r *gormTickets) Create(ctx context.Context, ticket *models.Ticket) error {
	return errors.WithStack(r.db.WithContext(ctx).Create(ticket).Error)
}

func (r *gormTickets) UpdateItems(ctx context.Context, dateKey string, id uuid.UUID, items models.ItemLines) error {
	ticket, err := r.Find(ctx, dateKey, id)
	if err != nil {
		return err
	}
	ticket.Items = items
	ticket.UpdatedAt = time.Now().UTC()
	return errors.WithStack(r.db.WithContext(ctx).Save(ticket).Error)
}

func (r *gormTickets) Delete(ctx context.Context, dateKey string, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("date_key = ? AND id = ?", dateKey, id).
		Delete(&models.Ticket{})
	if res.Error != nil {
		return errors.WithStack(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormTickets) NextPosition(ctx context.Context, dateKey string) (int, error) {
	var maxPos int
	err := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("date_key = ?", dateKey).
		Select("COALESCE(MAX(base_position), 0)").
		Scan(&maxPos).Error
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return maxPos + 1, nil
}

type gormLedger struct {
	db *gorm.DB
}

func (r *gormLedger) Get(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	err := r.db.WithContext(ctx).First(&settings, "id = ?", models.SettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &settings, nil
}

func (r *gormLedger) Save(ctx context.Context, settings *models.Settings) error {
	settings.ID = models.SettingsID
	settings.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(settings).Error
	return errors.WithStack(err)
}

func (r *gormLedger) ApplyDelta(ctx context.Context, delta menu.Counts) (menu.Counts, error) {
	settings, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	if settings.Inventory == nil {
		settings.Inventory = make(menu.Counts, len(delta))
	}
	for cat, d := range delta {
		next := settings.Inventory[cat] - d
		if next < 0 {
			return nil, errors.Errorf("inventory for %s would go negative (%d)", cat, next)
		}
	}
	for cat, d := range delta {
		settings.Inventory[cat] -= d
	}
	if err := r.Save(ctx, settings); err != nil {
		return nil, err
	}
	return settings.Inventory.Clone(), nil
}
