package service

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/example/walkup/backend/internal/menu"
	"github.com/example/walkup/backend/internal/repository"
)

// Business-rule rejections. These leave all state unchanged and are never
// retried.
var (
	// ErrNotFound reports an absent ticket or settings record.
	ErrNotFound = repository.ErrNotFound
	// ErrInvalidState reports a mutation attempted on a non-waiting ticket.
	ErrInvalidState = errors.New("ticket is not waiting")
	// ErrInvalidInput reports missing identifiers or a malformed item list.
	ErrInvalidInput = errors.New("invalid input")
)

// StockExceededError reports a per-category reservation that would drive the
// inventory ledger negative. Figures are netted against the ticket's previous
// reservation so the caller can render a precise message.
type StockExceededError struct {
	Category        menu.Category
	Available       int
	Requested       int
	AlreadyReserved int
}

func (e *StockExceededError) Error() string {
	return fmt.Sprintf("insufficient %s inventory: available %d, requested %d, already reserved %d",
		e.Category, e.Available, e.Requested, e.AlreadyReserved)
}

// isPermanent reports whether err is a business-rule rejection that retrying
// the transaction cannot fix.
func isPermanent(err error) bool {
	var stock *StockExceededError
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.As(err, &stock)
}
