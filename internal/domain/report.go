package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the kind of field work a report tracks
type Category string

// Category constants
const (
	CategoryMaintenance  Category = "perawatan"
	CategoryConstruction Category = "pembangunan"
	CategoryUpgrade      Category = "upgrading"
	CategoryRepair       Category = "perbaikan"
)

// Status is the lifecycle state of a report
type Status string

// Status constants
const (
	StatusPlanning  Status = "planning"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusDelayed   Status = "delayed"
)

// RiskLevel is the HSSE risk assessment of the work
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// WeatherCondition is the HSSE weather observation at the site
type WeatherCondition string

const (
	WeatherSunny  WeatherCondition = "sunny"
	WeatherCloudy WeatherCondition = "cloudy"
	WeatherRainy  WeatherCondition = "rainy"
	WeatherStormy WeatherCondition = "stormy"
)

// ValidCategories represents valid report categories
var ValidCategories = []Category{
	CategoryMaintenance,
	CategoryConstruction,
	CategoryUpgrade,
	CategoryRepair,
}

// ValidStatuses represents valid report statuses
var ValidStatuses = []Status{
	StatusPlanning,
	StatusOngoing,
	StatusCompleted,
	StatusDelayed,
}

// IsValidCategory checks if category is valid
func IsValidCategory(category string) bool {
	for _, c := range ValidCategories {
		if string(c) == category {
			return true
		}
	}
	return false
}

// IsValidStatus checks if status is valid
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses {
		if string(s) == status {
			return true
		}
	}
	return false
}

// Location is where the work takes place. Coordinates are optional and
// independently settable.
type Location struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// HSSEData is the health, safety, security and environment record of a report
type HSSEData struct {
	RiskLevel        RiskLevel        `json:"riskLevel"`
	WeatherCondition WeatherCondition `json:"weatherCondition"`
	SafetyIncidents  int              `json:"safetyIncidents"`
}

// Report represents the main domain entity
type Report struct {
	ID                 uuid.UUID `json:"id"`
	Code               string    `json:"code"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Category           Category  `json:"category"`
	StartDate          string    `json:"startDate"`
	EndDate            string    `json:"endDate"`
	Status             Status    `json:"status"`
	Progress           int       `json:"progress"`
	WorkerCount        int       `json:"workerCount"`
	ResponsiblePersons []string  `json:"responsiblePersons"`
	Location           Location  `json:"location"`
	HSSEData           HSSEData  `json:"hsseData"`
	Photos             []string  `json:"photos"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	Version            int       `json:"version"`
}

// NewReport creates a new Report with default values
func NewReport(in ReportInput, code string, now time.Time) *Report {
	return &Report{
		ID:                 uuid.New(),
		Code:               code,
		Title:              in.Title,
		Description:        in.Description,
		Category:           in.Category,
		StartDate:          in.StartDate,
		EndDate:            in.EndDate,
		Status:             StatusPlanning,
		Progress:           0,
		WorkerCount:        in.WorkerCount,
		ResponsiblePersons: copyStrings(in.ResponsiblePersons),
		Location:           in.Location,
		HSSEData:           in.HSSE,
		Photos:             []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
		Version:            1,
	}
}

// ResponsiblePersonsText renders the responsible persons the way the edit form shows them.
func (r *Report) ResponsiblePersonsText() string {
	return FormatResponsiblePersons(r.ResponsiblePersons)
}

// ParseResponsiblePersons splits a comma-separated list of names. Entries are
// trimmed and blanks are dropped.
func ParseResponsiblePersons(input string) []string {
	persons := []string{}
	for _, part := range strings.Split(input, ",") {
		if name := strings.TrimSpace(part); name != "" {
			persons = append(persons, name)
		}
	}
	return persons
}

// FormatResponsiblePersons is the inverse of ParseResponsiblePersons.
func FormatResponsiblePersons(persons []string) string {
	return strings.Join(persons, ", ")
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
