package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published by the report service
const (
	ReportCreated        = "report.created"
	ReportUpdated        = "report.updated"
	ReportStatusUpdated  = "report.status.updated"
	ReportPhotosAttached = "report.photos.attached"
)

// Event represents a domain event
type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	ReportID  string          `json:"report_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ReportCreatedPayload - published when a report is created
type ReportCreatedPayload struct {
	ReportID  string    `json:"report_id"`
	Code      string    `json:"code"`
	Category  string    `json:"category"`
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportUpdatedPayload - published on every successful edit. The old values
// let projections move counters between buckets.
type ReportUpdatedPayload struct {
	ReportID    string    `json:"report_id"`
	Code        string    `json:"code"`
	OldCategory string    `json:"old_category"`
	NewCategory string    `json:"new_category"`
	OldStatus   string    `json:"old_status"`
	NewStatus   string    `json:"new_status"`
	Progress    int       `json:"progress"`
	Version     int       `json:"version"`
	UpdatedBy   string    `json:"updated_by"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReportStatusUpdatedPayload - published when an edit changes the status
type ReportStatusUpdatedPayload struct {
	ReportID  string    `json:"report_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Progress  int       `json:"progress"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

// ReportPhotosAttachedPayload - published when photos are uploaded to a report
type ReportPhotosAttachedPayload struct {
	ReportID   string    `json:"report_id"`
	Photos     []string  `json:"photos"`
	TotalCount int       `json:"total_count"`
	AttachedBy string    `json:"attached_by"`
	AttachedAt time.Time `json:"attached_at"`
}

// NewEvent creates a new Event
func NewEvent(eventType string, reportID string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:   uuid.New().String(),
		EventType: eventType,
		ReportID:  reportID,
		Payload:   payloadBytes,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ToJSON converts event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses event from JSON bytes
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ParsePayload parses the payload into the specified type
func (e *Event) ParsePayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}
