package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stocktrigger/internal/domain"
)

// Clock returns the current time. Tests substitute a controllable clock.
type Clock func() time.Time

type lease struct {
	holder    string
	expiresAt time.Time
}

// LockTable holds named leases shared by every EvaluationLock created from it,
// standing in for the external store several processes would share.
type LockTable struct {
	mu     sync.Mutex
	leases map[string]lease
	now    Clock
}

// NewLockTable creates a lease table using clock, or time.Now when nil.
func NewLockTable(clock Clock) *LockTable {
	if clock == nil {
		clock = time.Now
	}
	return &LockTable{leases: make(map[string]lease), now: clock}
}

// EvaluationLock is one holder's handle on a named lease in a LockTable.
type EvaluationLock struct {
	table  *LockTable
	name   string
	holder string
}

// NewEvaluationLock creates a handle with a fresh holder token.
func NewEvaluationLock(table *LockTable, name string) *EvaluationLock {
	return &EvaluationLock{table: table, name: name, holder: uuid.NewString()}
}

// TryAcquire takes the lease only if it is free or expired. A live lease is
// never re-granted, even to its own holder.
func (l *EvaluationLock) TryAcquire(_ context.Context, leaseFor time.Duration) (bool, error) {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	current, held := t.leases[l.name]
	if held && now.Before(current.expiresAt) {
		return false, nil
	}

	t.leases[l.name] = lease{holder: l.holder, expiresAt: now.Add(leaseFor)}
	return true, nil
}

// Release drops the lease if this handle still owns it.
func (l *EvaluationLock) Release(_ context.Context) error {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, held := t.leases[l.name]; held && current.holder == l.holder {
		delete(t.leases, l.name)
	}
	return nil
}

var _ domain.EvaluationLock = (*EvaluationLock)(nil)

type baseline struct {
	price     float64
	expiresAt time.Time
}

// PriceBaselineStore is an in-memory domain.PriceBaselineStore with TTL eviction.
type PriceBaselineStore struct {
	mu   sync.Mutex
	data map[string]baseline
	now  Clock
}

// NewPriceBaselineStore creates an empty baseline store using clock, or time.Now when nil.
func NewPriceBaselineStore(clock Clock) *PriceBaselineStore {
	if clock == nil {
		clock = time.Now
	}
	return &PriceBaselineStore{data: make(map[string]baseline), now: clock}
}

// Get returns found=false for unknown or expired symbols.
func (s *PriceBaselineStore) Get(_ context.Context, symbol string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToUpper(symbol)
	b, ok := s.data[key]
	if !ok {
		return 0, false, nil
	}
	if !s.now().Before(b.expiresAt) {
		delete(s.data, key)
		return 0, false, nil
	}
	return b.price, true, nil
}

// Set stores price as the symbol's baseline.
func (s *PriceBaselineStore) Set(_ context.Context, symbol string, price float64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[strings.ToUpper(symbol)] = baseline{price: price, expiresAt: s.now().Add(ttl)}
	return nil
}

var _ domain.PriceBaselineStore = (*PriceBaselineStore)(nil)

// PriceHistoryRepository is an in-memory domain.PriceHistoryRepository.
type PriceHistoryRepository struct {
	mu   sync.RWMutex
	data map[string]map[int64]float64 // symbol -> unix day -> price
}

// NewPriceHistoryRepository creates an empty in-memory price history.
func NewPriceHistoryRepository() *PriceHistoryRepository {
	return &PriceHistoryRepository{data: make(map[string]map[int64]float64)}
}

// InsertBulk stores points, keeping the first value seen for a date.
func (r *PriceHistoryRepository) InsertBulk(_ context.Context, symbol string, points []domain.PricePoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToUpper(symbol)
	series, ok := r.data[key]
	if !ok {
		series = make(map[int64]float64)
		r.data[key] = series
	}
	for _, p := range points {
		ts := p.Date.UTC().Unix()
		if _, exists := series[ts]; !exists {
			series[ts] = p.Price
		}
	}
	return nil
}

// GetRange returns stored points in [start, end], ordered by date.
func (r *PriceHistoryRepository) GetRange(_ context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.PricePoint
	for ts, price := range r.data[strings.ToUpper(symbol)] {
		d := time.Unix(ts, 0).UTC()
		if d.Before(start) || d.After(end) {
			continue
		}
		result = append(result, domain.PricePoint{Date: d, Price: price})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

var _ domain.PriceHistoryRepository = (*PriceHistoryRepository)(nil)
