package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/example/walkup/backend/internal/menu"
	"github.com/example/walkup/backend/internal/models"
)

// Memory is an in-process Store used for local development (empty
// DATABASE_URL) and in tests. A single mutex serializes transactions, and
// InTx snapshots the state so a failed unit of work rolls back completely,
// matching the atomicity the Postgres store gets from serializable
// transactions.
type Memory struct {
	mu    sync.Mutex
	state memState
}

var _ Store = (*Memory)(nil)

type memState struct {
	days     map[string]map[uuid.UUID]models.Ticket
	settings *models.Settings
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: memState{days: make(map[string]map[uuid.UUID]models.Ticket)}}
}

func (s memState) clone() memState {
	out := memState{days: make(map[string]map[uuid.UUID]models.Ticket, len(s.days))}
	for day, tickets := range s.days {
		cp := make(map[uuid.UUID]models.Ticket, len(tickets))
		for id, t := range tickets {
			t.Items = append(models.ItemLines(nil), t.Items...)
			cp[id] = t
		}
		out.days[day] = cp
	}
	if s.settings != nil {
		cp := *s.settings
		cp.Inventory = s.settings.Inventory.Clone()
		cp.Buffer = s.settings.Buffer.Clone()
		out.settings = &cp
	}
	return out
}

// InTx serializes against all other access and restores the pre-transaction
// state when fn fails.
func (m *Memory) InTx(ctx context.Context, fn func(tx StoreTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.state.clone()
	if err := fn(&memView{state: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// Tickets returns ticket access that locks per call.
func (m *Memory) Tickets() TicketStore {
	return &lockedTickets{m: m}
}

// Ledger returns settings access that locks per call.
func (m *Memory) Ledger() LedgerStore {
	return &lockedLedger{m: m}
}

// memView implements StoreTx directly over the state; the caller holds the lock.
type memView struct {
	state *memState
}

func (v *memView) Tickets() TicketStore { return &memTickets{state: v.state} }
func (v *memView) Ledger() LedgerStore  { return &memLedger{state: v.state} }

type memTickets struct {
	state *memState
}

func (r *memTickets) ListByDay(ctx context.Context, dateKey string) ([]models.Ticket, error) {
	day := r.state.days[dateKey]
	tickets := make([]models.Ticket, 0, len(day))
	for _, t := range day {
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].BasePosition < tickets[j].BasePosition
	})
	return tickets, nil
}

func (r *memTickets) Find(ctx context.Context, dateKey string, id uuid.UUID) (*models.Ticket, error) {
	if t, ok := r.state.days[dateKey][id]; ok {
		t.Items = append(models.ItemLines(nil), t.Items...)
		return &t, nil
	}
	return nil, ErrNotFound
}

func (r *memTickets) Create(ctx context.Context, ticket *models.Ticket) error {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	if ticket.Status == "" {
		ticket.Status = models.TicketStatusWaiting
	}
	now := time.Now().UTC()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	day, ok := r.state.days[ticket.DateKey]
	if !ok {
		day = make(map[uuid.UUID]models.Ticket)
		r.state.days[ticket.DateKey] = day
	}
	if _, exists := day[ticket.ID]; exists {
		return errors.New("ticket already exists")
	}
	day[ticket.ID] = *ticket
	return nil
}

func (r *memTickets) UpdateItems(ctx context.Context, dateKey string, id uuid.UUID, items models.ItemLines) error {
	day := r.state.days[dateKey]
	t, ok := day[id]
	if !ok {
		return ErrNotFound
	}
	t.Items = append(models.ItemLines(nil), items...)
	t.UpdatedAt = time.Now().UTC()
	day[id] = t
	return nil
}

func (r *memTickets) Delete(ctx context.Context, dateKey string, id uuid.UUID) error {
	day := r.state.days[dateKey]
	if _, ok := day[id]; !ok {
		return ErrNotFound
	}
	delete(day, id)
	return nil
}

func (r *memTickets) NextPosition(ctx context.Context, dateKey string) (int, error) {
	maxPos := 0
	for _, t := range r.state.days[dateKey] {
		if t.BasePosition > maxPos {
			maxPos = t.BasePosition
		}
	}
	return maxPos + 1, nil
}

type memLedger struct {
	state *memState
}

func (r *memLedger) Get(ctx context.Context) (*models.Settings, error) {
	if r.state.settings == nil {
		return nil, ErrNotFound
	}
	cp := *r.state.settings
	cp.Inventory = r.state.settings.Inventory.Clone()
	cp.Buffer = r.state.settings.Buffer.Clone()
	return &cp, nil
}

func (r *memLedger) Save(ctx context.Context, settings *models.Settings) error {
	cp := *settings
	cp.ID = models.SettingsID
	cp.Inventory = settings.Inventory.Clone()
	cp.Buffer = settings.Buffer.Clone()
	cp.UpdatedAt = time.Now().UTC()
	r.state.settings = &cp
	return nil
}

func (r *memLedger) ApplyDelta(ctx context.Context, delta menu.Counts) (menu.Counts, error) {
	if r.state.settings == nil {
		return nil, ErrNotFound
	}
	inv := r.state.settings.Inventory
	if inv == nil {
		inv = make(menu.Counts, len(delta))
		r.state.settings.Inventory = inv
	}
	for cat, d := range delta {
		if inv[cat]-d < 0 {
			return nil, errors.Errorf("inventory for %s would go negative", cat)
		}
	}
	for cat, d := range delta {
		inv[cat] -= d
	}
	r.state.settings.UpdatedAt = time.Now().UTC()
	return inv.Clone(), nil
}

// lockedTickets wraps memTickets with the store mutex for non-transactional reads.
type lockedTickets struct {
	m *Memory
}

func (r *lockedTickets) ListByDay(ctx context.Context, dateKey string) ([]models.Ticket, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return (&memTickets{state: &r.m.state}).ListByDay(ctx, dateKey)
}

func (r *lockedTickets) Find(ctx context.Context, dateKey string, id uuid.UUID) (*models.Ticket, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return (&memTickets{state: &r.m.state}).Find(ctx, dateKey, id)
}

func (r *lockedTickets) Create(ctx context.Context, ticket *models.Ticket) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return (&memTickets{state: &r.m.state}).Create(ctx, ticket)
}

func (r *lockedTickets) UpdateItems(ctx context.Context, dateKey string, id uuid.UUID, items models.ItemLines) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return (&memTickets{state: &r.m.state}).UpdateItems(ctx, dateKey, id, items)
}

func (r *lockedTickets) Delete(ctx context.Context, dateKey string, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return (&memTickets{state: &r.m.state}).Delete(ctx, dateKey, id)
}

func (r *lockedTickets) NextPosition(ctx context.Context, dateKey string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return (&memTickets{state: &r.m.state}).NextPosition(ctx, dateKey)
}

// lockedLedger wraps memLedger with the store mutex for non-transactional access.
type lockedLedger struct {
	m *Memory
}

func (r *lockedLedger) Get(ctx context.Context) (*models.Settings, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return (&memLedger{state: &r.m.state}).Get(ctx)
}

func (r *lockedLedger) Save(ctx context.Context, settings *models.Settings) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return (&memLedger{state: &r.m.state}).Save(ctx, settings)
}

func (r *lockedLedger) ApplyDelta(ctx context.Context, delta menu.Counts) (menu.Counts, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return (&memLedger{state: &r.m.state}).ApplyDelta(ctx, delta)
}
