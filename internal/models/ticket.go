package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/walkup/backend/internal/menu"
)

// TicketStatus describes the life-cycle state of a queued order.
type TicketStatus string

const (
	// TicketStatusWaiting means the ticket holds a live inventory
	// reservation for its items.
	TicketStatusWaiting TicketStatus = "waiting"
	// TicketStatusReady means the order has been served; its inventory
	// consumption is final and is never restored.
	TicketStatusReady TicketStatus = "ready"
)

// ItemLine is one ordered line on a ticket. Name is the free-text display
// string resolved through the menu classifier.
type ItemLine struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

// ItemLines is the ordered item list of a ticket, stored as a JSON column.
type ItemLines []ItemLine

// Totals aggregates line quantities per category. Negative quantities count
// as zero and unclassifiable names contribute nothing, so no line can reduce
// another category's total.
func (ls ItemLines) Totals(classifier *menu.Classifier) menu.Counts {
	totals := make(menu.Counts, len(classifier.Categories()))
	for _, line := range ls {
		cat := classifier.Classify(line.Name)
		if cat == menu.CategoryUnknown {
			continue
		}
		if line.Qty > 0 {
			totals[cat] += line.Qty
		}
	}
	return totals
}

// Ticket represents one customer's queued order within a single day's queue.
type Ticket struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	DateKey      string       `gorm:"size:10;index:idx_day_position,priority:1" json:"dateKey"`
	BasePosition int          `gorm:"index:idx_day_position,priority:2" json:"basePosition"`
	Status       TicketStatus `json:"status"`
	Items        ItemLines    `gorm:"serializer:json" json:"items"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// BeforeCreate is a GORM hook that populates the primary key and default status.
func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TicketStatusWaiting
	}
	return nil
}
