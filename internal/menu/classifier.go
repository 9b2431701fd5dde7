package menu

import "strings"

// Category identifies one class of perishable good that inventory is tracked
// against. The set of categories is fixed per Classifier, not per call.
type Category string

// CategoryUnknown marks an item name the classifier does not recognize.
// Unknown items never touch inventory (free or off-menu items).
const CategoryUnknown Category = ""

// Default categories for the walk-up menu.
const (
	CategoryChai     Category = "chai"
	CategoryBun      Category = "bun"
	CategoryTiramisu Category = "tiramisu"
)

// Classifier maps free-text item display names onto categories by
// case-insensitive substring match against per-category alias lists.
type Classifier struct {
	order   []Category
	aliases map[Category][]string
}

// NewClassifier builds a classifier over the given categories in declared
// order. The order is significant: validation errors report the first failing
// category in this order.
func NewClassifier(order []Category, aliases map[Category][]string) *Classifier {
	lowered := make(map[Category][]string, len(aliases))
	for cat, names := range aliases {
		for _, n := range names {
			lowered[cat] = append(lowered[cat], strings.ToLower(n))
		}
	}
	return &Classifier{order: order, aliases: lowered}
}

// DefaultClassifier covers the stock menu: chai, bun, tiramisu.
func DefaultClassifier() *Classifier {
	return NewClassifier(
		[]Category{CategoryChai, CategoryBun, CategoryTiramisu},
		map[Category][]string{
			CategoryChai:     {"chai", "tea"},
			CategoryBun:      {"bun"},
			CategoryTiramisu: {"tiramisu"},
		},
	)
}

// Categories returns the tracked categories in declared order.
func (c *Classifier) Categories() []Category {
	return c.order
}

// Counts maps each category to a unit count. Used both for ledger state and
// for per-ticket reservation totals.
type Counts map[Category]int

// Clone returns an independent copy so callers can project changes without
// mutating shared state.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for cat, n := range c {
		out[cat] = n
	}
	return out
}

// Classify resolves a display name to its category, or CategoryUnknown.
func (c *Classifier) Classify(name string) Category {
	lowered := strings.ToLower(name)
	for _, cat := range c.order {
		for _, alias := range c.aliases[cat] {
			if strings.Contains(lowered, alias) {
				return cat
			}
		}
	}
	return CategoryUnknown
}
