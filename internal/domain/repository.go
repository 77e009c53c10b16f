package domain

import (
	"context"
)

// Pagination defaults for report listings.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// ReportRepository persists reports.
//
// Get and Update return *NotFoundError for unknown ids. Update returns
// *ConflictError when expectedVersion is positive and differs from the stored
// version; expectedVersion 0 overwrites unconditionally. Any other failure is
// a *PersistenceError.
type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
	Get(ctx context.Context, id string) (*Report, error)
	Update(ctx context.Context, r *Report, expectedVersion int) error
	List(ctx context.Context, filter ListFilter) ([]Report, int, error)
}

// ListFilter narrows and pages a report listing. Empty fields match everything.
type ListFilter struct {
	Category Category
	Status   Status
	Page     int
	PerPage  int
}

// Normalize clamps paging to sane values.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	return f
}

// Validate rejects filter values outside the enumerations.
func (f ListFilter) Validate() error {
	fields := map[string]string{}
	if f.Category != "" && !IsValidCategory(string(f.Category)) {
		fields["category"] = msgCategory
	}
	if f.Status != "" && !IsValidStatus(string(f.Status)) {
		fields["status"] = msgStatus
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Offset is the number of rows skipped before the current page.
func (f ListFilter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.PerPage
}

// CategoryStatistics counts reports per status within one category.
type CategoryStatistics struct {
	Category  Category `json:"category"`
	Total     int      `json:"total"`
	Planning  int      `json:"planning"`
	Ongoing   int      `json:"ongoing"`
	Completed int      `json:"completed"`
	Delayed   int      `json:"delayed"`
}

// Add adjusts the counter for status by delta, never dropping below zero.
func (s *CategoryStatistics) Add(status Status, delta int) {
	bump := func(n *int) {
		*n += delta
		if *n < 0 {
			*n = 0
		}
	}
	bump(&s.Total)
	switch status {
	case StatusPlanning:
		bump(&s.Planning)
	case StatusOngoing:
		bump(&s.Ongoing)
	case StatusCompleted:
		bump(&s.Completed)
	case StatusDelayed:
		bump(&s.Delayed)
	}
}

// StatisticsReader serves per-category report counts.
type StatisticsReader interface {
	Statistics(ctx context.Context) ([]CategoryStatistics, error)
}
