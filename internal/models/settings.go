package models

import (
	"time"

	"github.com/example/walkup/backend/internal/menu"
)

// SettingsID is the primary key of the single settings row. The ledger is a
// singleton per deployment, not per day.
const SettingsID = "app-settings"

// Default service hours and messaging for a fresh deployment.
const (
	DefaultServiceStart  = "06:00"
	DefaultServiceEnd    = "23:00"
	DefaultClosedMessage = "Queue is currently closed. Please check back during service hours."
	DefaultBuffer        = 10
)

// Settings is the shared configuration and inventory ledger document.
// Inventory is the single source of truth for units available to reserve;
// Buffer is the per-category safety margin read by collaborators (the
// low-stock watcher), never enforced by the reconciliation engine itself.
type Settings struct {
	ID            string      `gorm:"primaryKey;size:32" json:"-"`
	ServiceStart  string      `gorm:"size:5" json:"serviceStart"`
	ServiceEnd    string      `gorm:"size:5" json:"serviceEnd"`
	ClosedMessage string      `json:"closedMessage"`
	Inventory     menu.Counts `gorm:"serializer:json" json:"inventory"`
	Buffer        menu.Counts `gorm:"serializer:json" json:"buffer"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// DefaultSettings returns the settings used when no record has been saved
// yet: zero inventory and a buffer of ten units per tracked category.
func DefaultSettings(categories []menu.Category) *Settings {
	s := &Settings{
		ID:            SettingsID,
		ServiceStart:  DefaultServiceStart,
		ServiceEnd:    DefaultServiceEnd,
		ClosedMessage: DefaultClosedMessage,
		Inventory:     make(menu.Counts, len(categories)),
		Buffer:        make(menu.Counts, len(categories)),
	}
	for _, cat := range categories {
		s.Inventory[cat] = 0
		s.Buffer[cat] = DefaultBuffer
	}
	return s
}

// FillDefaults completes a partially populated record so every tracked
// category is present in both maps. Stored records may predate a category.
func (s *Settings) FillDefaults(categories []menu.Category) {
	if s.ServiceStart == "" {
		s.ServiceStart = DefaultServiceStart
	}
	if s.ServiceEnd == "" {
		s.ServiceEnd = DefaultServiceEnd
	}
	if s.ClosedMessage == "" {
		s.ClosedMessage = DefaultClosedMessage
	}
	if s.Inventory == nil {
		s.Inventory = make(menu.Counts, len(categories))
	}
	if s.Buffer == nil {
		s.Buffer = make(menu.Counts, len(categories))
	}
	for _, cat := range categories {
		if _, ok := s.Inventory[cat]; !ok {
			s.Inventory[cat] = 0
		}
		if _, ok := s.Buffer[cat]; !ok {
			s.Buffer[cat] = DefaultBuffer
		}
	}
}
