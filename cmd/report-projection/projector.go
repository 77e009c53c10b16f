package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/events"
)

// Projector keeps report_statistics in step with the report event stream
type Projector struct {
	db  *sql.DB
	now func() time.Time
}

func NewProjector(db *sql.DB) *Projector {
	return &Projector{db: db, now: time.Now}
}

// HandleEvent applies one event exactly once. Already processed event ids
// are skipped so redelivery after a crash is harmless.
func (p *Projector) HandleEvent(ctx context.Context, event *events.Event) error {
	log := logrus.WithFields(logrus.Fields{
		"event_id":   event.EventID,
		"event_type": event.EventType,
		"report_id":  event.ReportID,
	})

	var exists bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)`, event.EventID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check event idempotency: %w", err)
	}
	if exists {
		log.Debug("[PROJECTION] event already processed, skipping")
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	switch event.EventType {
	case events.ReportCreated:
		if err := p.handleReportCreated(ctx, tx, event); err != nil {
			return err
		}
	case events.ReportUpdated:
		if err := p.handleReportUpdated(ctx, tx, event); err != nil {
			return err
		}
	default:
		// status and photo events carry nothing the counters need
		log.Debug("[PROJECTION] event ignored")
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO processed_events (event_id, event_type, processed_at) VALUES ($1, $2, $3)`,
		event.EventID, event.EventType, p.now())
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info("[PROJECTION] event applied")
	return nil
}

func (p *Projector) handleReportCreated(ctx context.Context, tx *sql.Tx, event *events.Event) error {
	var payload events.ReportCreatedPayload
	if err := event.ParsePayload(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal ReportCreated payload: %w", err)
	}
	return increment(ctx, tx, payload.Category, payload.Status)
}

// handleReportUpdated moves one report between buckets when its category or
// status changed
func (p *Projector) handleReportUpdated(ctx context.Context, tx *sql.Tx, event *events.Event) error {
	var payload events.ReportUpdatedPayload
	if err := event.ParsePayload(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal ReportUpdated payload: %w", err)
	}
	if payload.OldCategory == payload.NewCategory && payload.OldStatus == payload.NewStatus {
		return nil
	}

	if err := decrement(ctx, tx, payload.OldCategory, payload.OldStatus); err != nil {
		return err
	}
	return increment(ctx, tx, payload.NewCategory, payload.NewStatus)
}

func increment(ctx context.Context, tx *sql.Tx, category, status string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO report_statistics (category, status, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (category, status) DO UPDATE SET
			count = report_statistics.count + 1,
			updated_at = NOW()`,
		category, status)
	if err != nil {
		return fmt.Errorf("failed to increment %s/%s: %w", category, status, err)
	}
	return nil
}

func decrement(ctx context.Context, tx *sql.Tx, category, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE report_statistics
		SET count = GREATEST(count - 1, 0), updated_at = NOW()
		WHERE category = $1 AND status = $2`,
		category, status)
	if err != nil {
		return fmt.Errorf("failed to decrement %s/%s: %w", category, status, err)
	}
	return nil
}
