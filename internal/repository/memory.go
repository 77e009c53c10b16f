package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/domain"
)

// MemoryRepository keeps reports in process. Reports are copied on the way in
// and out so callers never share state with the store.
type MemoryRepository struct {
	mu      sync.RWMutex
	reports map[string]domain.Report
	codes   map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		reports: make(map[string]domain.Report),
		codes:   make(map[string]string),
	}
}

func (m *MemoryRepository) Create(ctx context.Context, r *domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := r.ID.String()
	if _, exists := m.reports[id]; exists {
		return &domain.PersistenceError{Op: "create report", Err: fmt.Errorf("duplicate id %s", id)}
	}
	if other, exists := m.codes[r.Code]; exists {
		return &domain.PersistenceError{Op: "create report", Err: fmt.Errorf("code %s already used by %s", r.Code, other)}
	}
	m.reports[id] = cloneReport(*r)
	m.codes[r.Code] = id
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (*domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, exists := m.reports[id]
	if !exists {
		return nil, &domain.NotFoundError{ID: id}
	}
	out := cloneReport(r)
	return &out, nil
}

func (m *MemoryRepository) Update(ctx context.Context, r *domain.Report, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := r.ID.String()
	current, exists := m.reports[id]
	if !exists {
		return &domain.NotFoundError{ID: id}
	}
	if expectedVersion > 0 && current.Version != expectedVersion {
		return &domain.ConflictError{ID: id, Expected: expectedVersion, Actual: current.Version}
	}

	next := cloneReport(*r)
	// id, code and createdAt belong to the stored record
	next.Code = current.Code
	next.CreatedAt = current.CreatedAt
	m.reports[id] = next
	return nil
}

func (m *MemoryRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Report, int, error) {
	filter = filter.Normalize()

	m.mu.RLock()
	matched := make([]domain.Report, 0, len(m.reports))
	for _, r := range m.reports {
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		matched = append(matched, cloneReport(r))
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Code > matched[j].Code
	})

	total := len(matched)
	start := filter.Offset()
	if start >= total {
		return []domain.Report{}, total, nil
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// Statistics counts reports per category and status directly from the store
func (m *MemoryRepository) Statistics(ctx context.Context) ([]domain.CategoryStatistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byCategory := make(map[domain.Category]*domain.CategoryStatistics)
	for _, r := range m.reports {
		stat, exists := byCategory[r.Category]
		if !exists {
			stat = &domain.CategoryStatistics{Category: r.Category}
			byCategory[r.Category] = stat
		}
		stat.Add(r.Status, 1)
	}
	return sortedStatistics(byCategory), nil
}

func cloneReport(r domain.Report) domain.Report {
	out := r
	out.ResponsiblePersons = append([]string{}, r.ResponsiblePersons...)
	out.Photos = append([]string{}, r.Photos...)
	if r.Location.Latitude != nil {
		lat := *r.Location.Latitude
		out.Location.Latitude = &lat
	}
	if r.Location.Longitude != nil {
		lng := *r.Location.Longitude
		out.Location.Longitude = &lng
	}
	return out
}

// MemoryCodeSequence is a mutex-guarded per-year counter
type MemoryCodeSequence struct {
	mu   sync.Mutex
	last map[int]int
}

func NewMemoryCodeSequence() *MemoryCodeSequence {
	return &MemoryCodeSequence{last: make(map[int]int)}
}

func (s *MemoryCodeSequence) Next(ctx context.Context, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[year]++
	return s.last[year], nil
}
