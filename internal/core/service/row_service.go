package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/rowstore/internal/core/domain"
	"github.com/rl1809/rowstore/internal/metrics"
)

var (
	ErrNotFound     = errors.New("row not found")
	ErrInvalidInput = errors.New("invalid input")
)

var seedRows = []domain.Row{
	{ID: 1, Name: "Apples", Quantity: 10},
	{ID: 2, Name: "Oranges", Quantity: 5},
}

// RowService owns the in-memory row table and the id counter. One mutex
// guards both, so every operation is a single atomic step.
type RowService struct {
	mu      sync.Mutex
	rows    map[int]domain.Row
	nextID  int
	changes chan domain.RowChange
	closed  bool
	metrics *metrics.Metrics
}

// NewRowService returns a service holding the seed rows. queueSize > 0
// enables the change queue read by GetChangeQueue.
func NewRowService(queueSize int, m *metrics.Metrics) *RowService {
	s := &RowService{
		rows:    make(map[int]domain.Row, len(seedRows)),
		nextID:  1,
		metrics: m,
	}
	for _, row := range seedRows {
		s.rows[row.ID] = row
		if row.ID >= s.nextID {
			s.nextID = row.ID + 1
		}
	}
	if queueSize > 0 {
		s.changes = make(chan domain.RowChange, queueSize)
	}
	m.SetRows(len(s.rows))
	return s
}

func (s *RowService) List(ctx context.Context) []domain.Row {
	s.mu.Lock()
	rows := make([]domain.Row, 0, len(s.rows))
	for _, row := range s.rows {
		rows = append(rows, row)
	}
	s.mu.Unlock()

	slices.SortFunc(rows, func(a, b domain.Row) int {
		return cmp.Compare(a.ID, b.ID)
	})
	s.metrics.ObserveRowOp("list", nil)
	return rows
}

func (s *RowService) Get(ctx context.Context, id int) (domain.Row, error) {
	s.mu.Lock()
	row, ok := s.rows[id]
	s.mu.Unlock()

	if !ok {
		s.metrics.ObserveRowOp("get", ErrNotFound)
		return domain.Row{}, ErrNotFound
	}
	s.metrics.ObserveRowOp("get", nil)
	return row, nil
}

func (s *RowService) Create(ctx context.Context, in domain.RowInput) (domain.Row, error) {
	row, err := s.create(in)
	s.metrics.ObserveRowOp("create", err)
	return row, err
}

func (s *RowService) create(in domain.RowInput) (domain.Row, error) {
	if err := validateCreate(in); err != nil {
		return domain.Row{}, err
	}
	quantity, err := in.Quantity.Int()
	if err != nil {
		return domain.Row{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := domain.Row{
		ID:       s.nextID,
		Name:     *in.Name,
		Quantity: quantity,
	}
	s.nextID++
	s.rows[row.ID] = row
	s.publish(domain.ChangeOpCreate, row)
	s.metrics.SetRows(len(s.rows))

	return row, nil
}

// Update merges the fields present in patch onto the row. A nil or empty
// patch is invalid input, but an unknown id is reported first.
func (s *RowService) Update(ctx context.Context, id int, patch *domain.RowInput) (domain.Row, error) {
	row, err := s.update(id, patch)
	s.metrics.ObserveRowOp("update", err)
	return row, err
}

func (s *RowService) update(id int, patch *domain.RowInput) (domain.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return domain.Row{}, ErrNotFound
	}
	if patch == nil || patch.Empty() {
		return domain.Row{}, fmt.Errorf("%w: missing JSON body", ErrInvalidInput)
	}
	if patch.Quantity != nil {
		quantity, err := patch.Quantity.Int()
		if err != nil {
			return domain.Row{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		row.Quantity = quantity
	}
	if patch.Name != nil {
		row.Name = *patch.Name
	}

	s.rows[id] = row
	s.publish(domain.ChangeOpUpdate, row)

	return row, nil
}

// Exists reports whether id names a row. It records no metrics, so adapters
// can use it to order their own error reporting.
func (s *RowService) Exists(ctx context.Context, id int) bool {
	s.mu.Lock()
	_, ok := s.rows[id]
	s.mu.Unlock()
	return ok
}

// Delete removes the row and returns it.
func (s *RowService) Delete(ctx context.Context, id int) (domain.Row, error) {
	s.mu.Lock()
	row, ok := s.rows[id]
	if ok {
		delete(s.rows, id)
		s.publish(domain.ChangeOpDelete, row)
		s.metrics.SetRows(len(s.rows))
	}
	s.mu.Unlock()

	if !ok {
		s.metrics.ObserveRowOp("delete", ErrNotFound)
		return domain.Row{}, ErrNotFound
	}
	s.metrics.ObserveRowOp("delete", nil)
	return row, nil
}

// publish offers a change to the queue without blocking. Callers hold s.mu,
// which keeps queue order equal to apply order.
func (s *RowService) publish(op domain.ChangeOp, row domain.Row) {
	if s.changes == nil || s.closed {
		return
	}
	change := domain.RowChange{
		ID:         uuid.NewString(),
		Op:         op,
		Row:        row,
		OccurredAt: time.Now().UTC(),
	}
	select {
	case s.changes <- change:
	default:
		s.metrics.IncJournalDropped()
	}
}

// GetChangeQueue returns the change queue, or nil when it is disabled.
func (s *RowService) GetChangeQueue() <-chan domain.RowChange {
	return s.changes
}

// Close stops publishing and closes the change queue so workers can drain it.
func (s *RowService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.changes != nil {
		close(s.changes)
	}
}
