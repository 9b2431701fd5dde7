package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/example/walkup/backend/internal/menu"
	"github.com/example/walkup/backend/internal/models"
	"github.com/example/walkup/backend/internal/repository"
)

// SettingsService reads and writes the shared settings record: service
// hours, closed message, the inventory ledger, and the per-category safety
// buffer. Saving inventory here is the restock path; reconciliation never
// writes through Save.
type SettingsService struct {
	store      repository.Store
	classifier *menu.Classifier
}

// NewSettingsService builds the service.
func NewSettingsService(store repository.Store, classifier *menu.Classifier) *SettingsService {
	return &SettingsService{store: store, classifier: classifier}
}

// Get returns the stored settings merged over defaults, or the defaults when
// nothing has been saved yet.
func (s *SettingsService) Get(ctx context.Context) (*models.Settings, error) {
	settings, err := s.store.Ledger().Get(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return models.DefaultSettings(s.classifier.Categories()), nil
	}
	if err != nil {
		return nil, err
	}
	settings.FillDefaults(s.classifier.Categories())
	return settings, nil
}

// Save overwrites the settings record. Negative counts are clamped to zero so
// a restock can never leave the ledger below its floor.
func (s *SettingsService) Save(ctx context.Context, in *models.Settings) (*models.Settings, error) {
	if in == nil {
		return nil, errors.Wrap(ErrInvalidInput, "settings body is required")
	}
	in.FillDefaults(s.classifier.Categories())
	for cat, n := range in.Inventory {
		if n < 0 {
			in.Inventory[cat] = 0
		}
	}
	for cat, n := range in.Buffer {
		if n < 0 {
			in.Buffer[cat] = 0
		}
	}
	if err := s.store.Ledger().Save(ctx, in); err != nil {
		return nil, err
	}
	return in, nil
}
