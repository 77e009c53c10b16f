package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/domain"
)

const reportColumns = `id, code, title, description, category, start_date, end_date, status, progress,
	worker_count, responsible_persons, location_name, latitude, longitude, risk_level,
	weather_condition, safety_incidents, photos, created_at, updated_at, version`

// PostgresRepository implements domain.ReportRepository on lib/pq
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new report
func (p *PostgresRepository) Create(ctx context.Context, r *domain.Report) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		r.ID, r.Code, r.Title, r.Description, string(r.Category), r.StartDate, r.EndDate, string(r.Status), r.Progress,
		r.WorkerCount, pq.Array(r.ResponsiblePersons), r.Location.Name, r.Location.Latitude, r.Location.Longitude,
		string(r.HSSEData.RiskLevel), string(r.HSSEData.WeatherCondition), r.HSSEData.SafetyIncidents,
		pq.Array(r.Photos), r.CreatedAt, r.UpdatedAt, r.Version)
	if err != nil {
		return &domain.PersistenceError{Op: "create report", Err: err}
	}
	return nil
}

// Get returns a report by id
func (p *PostgresRepository) Get(ctx context.Context, id string) (*domain.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &domain.NotFoundError{ID: id}
	}

	row := p.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get report", Err: err}
	}
	return r, nil
}

// Update overwrites every mutable column. With a positive expectedVersion the
// write only lands if the stored version still matches.
func (p *PostgresRepository) Update(ctx context.Context, r *domain.Report, expectedVersion int) error {
	query := `
		UPDATE reports SET
			title = $2, description = $3, category = $4, start_date = $5, end_date = $6,
			status = $7, progress = $8, worker_count = $9, responsible_persons = $10,
			location_name = $11, latitude = $12, longitude = $13, risk_level = $14,
			weather_condition = $15, safety_incidents = $16, photos = $17,
			updated_at = $18, version = $19
		WHERE id = $1`
	args := []interface{}{
		r.ID, r.Title, r.Description, string(r.Category), r.StartDate, r.EndDate,
		string(r.Status), r.Progress, r.WorkerCount, pq.Array(r.ResponsiblePersons),
		r.Location.Name, r.Location.Latitude, r.Location.Longitude, string(r.HSSEData.RiskLevel),
		string(r.HSSEData.WeatherCondition), r.HSSEData.SafetyIncidents, pq.Array(r.Photos),
		r.UpdatedAt, r.Version,
	}
	if expectedVersion > 0 {
		query += ` AND version = $20`
		args = append(args, expectedVersion)
	}

	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &domain.PersistenceError{Op: "update report", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "update report", Err: err}
	}
	if affected > 0 {
		return nil
	}

	var actual int
	err = p.db.QueryRowContext(ctx, `SELECT version FROM reports WHERE id = $1`, r.ID).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{ID: r.ID.String()}
	}
	if err != nil {
		return &domain.PersistenceError{Op: "read report version", Err: err}
	}
	return &domain.ConflictError{ID: r.ID.String(), Expected: expectedVersion, Actual: actual}
}

// List returns one page of reports, newest first, and the total match count
func (p *PostgresRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Report, int, error) {
	filter = filter.Normalize()

	where := ` WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", argIndex)
		args = append(args, string(filter.Category))
		argIndex++
	}

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(filter.Status))
		argIndex++
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, &domain.PersistenceError{Op: "count reports", Err: err}
	}

	query := `SELECT ` + reportColumns + ` FROM reports` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.PerPage, filter.Offset())

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, &domain.PersistenceError{Op: "list reports", Err: err}
	}
	defer rows.Close()

	reports := []domain.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, &domain.PersistenceError{Op: "scan report", Err: err}
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &domain.PersistenceError{Op: "list reports", Err: err}
	}

	return reports, total, nil
}

// Statistics reads the counters maintained by the projection
func (p *PostgresRepository) Statistics(ctx context.Context) ([]domain.CategoryStatistics, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT category, status, COALESCE(count, 0) FROM report_statistics ORDER BY category, status`)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read statistics", Err: err}
	}
	defer rows.Close()

	byCategory := make(map[domain.Category]*domain.CategoryStatistics)
	for rows.Next() {
		var category, status string
		var count int
		if err := rows.Scan(&category, &status, &count); err != nil {
			return nil, &domain.PersistenceError{Op: "scan statistics", Err: err}
		}

		stat, exists := byCategory[domain.Category(category)]
		if !exists {
			stat = &domain.CategoryStatistics{Category: domain.Category(category)}
			byCategory[domain.Category(category)] = stat
		}
		stat.Add(domain.Status(status), count)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "read statistics", Err: err}
	}

	return sortedStatistics(byCategory), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*domain.Report, error) {
	var r domain.Report
	var category, status, risk, weather string
	var lat, lng sql.NullFloat64

	err := row.Scan(&r.ID, &r.Code, &r.Title, &r.Description, &category, &r.StartDate, &r.EndDate,
		&status, &r.Progress, &r.WorkerCount, pq.Array(&r.ResponsiblePersons), &r.Location.Name,
		&lat, &lng, &risk, &weather, &r.HSSEData.SafetyIncidents, pq.Array(&r.Photos),
		&r.CreatedAt, &r.UpdatedAt, &r.Version)
	if err != nil {
		return nil, err
	}

	r.Category = domain.Category(category)
	r.Status = domain.Status(status)
	r.HSSEData.RiskLevel = domain.RiskLevel(risk)
	r.HSSEData.WeatherCondition = domain.WeatherCondition(weather)
	if lat.Valid {
		r.Location.Latitude = &lat.Float64
	}
	if lng.Valid {
		r.Location.Longitude = &lng.Float64
	}
	if r.ResponsiblePersons == nil {
		r.ResponsiblePersons = []string{}
	}
	if r.Photos == nil {
		r.Photos = []string{}
	}
	return &r, nil
}

// sortedStatistics orders known categories first, in their declared order.
func sortedStatistics(byCategory map[domain.Category]*domain.CategoryStatistics) []domain.CategoryStatistics {
	rank := make(map[domain.Category]int, len(domain.ValidCategories))
	for i, c := range domain.ValidCategories {
		rank[c] = i
	}

	stats := make([]domain.CategoryStatistics, 0, len(byCategory))
	for _, s := range byCategory {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool {
		ri, iKnown := rank[stats[i].Category]
		rj, jKnown := rank[stats[j].Category]
		if iKnown != jKnown {
			return iKnown
		}
		if iKnown {
			return ri < rj
		}
		return stats[i].Category < stats[j].Category
	})
	return stats
}

// PostgresCodeSequence hands out per-year report numbers from report_code_sequences
type PostgresCodeSequence struct {
	db *sql.DB
}

func NewPostgresCodeSequence(db *sql.DB) *PostgresCodeSequence {
	return &PostgresCodeSequence{db: db}
}

// Next atomically increments and returns the counter for year
func (s *PostgresCodeSequence) Next(ctx context.Context, year int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO report_code_sequences (year, last_value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = report_code_sequences.last_value + 1
		RETURNING last_value`, year).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to advance code sequence for %d: %w", year, err)
	}
	return n, nil
}
