package service

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/auth"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/domain"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/eventbus"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/events"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/logger"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/storage"
)

// Repository is what the service needs from persistence.
type Repository interface {
	domain.ReportRepository
	domain.StatisticsReader
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   auth.Role
}

// Upload is one photo file received from a client.
type Upload struct {
	Name string
	Data []byte
}

// ReportService runs the report workflow: authorize, validate, apply the
// lifecycle, persist, then publish.
type ReportService struct {
	repo   Repository
	codes  *domain.CodeGenerator
	store  storage.AttachmentStore
	policy storage.PhotoPolicy
	events eventbus.Publisher
	now    func() time.Time
}

func NewReportService(repo Repository, codes *domain.CodeGenerator, store storage.AttachmentStore, policy storage.PhotoPolicy, publisher eventbus.Publisher) *ReportService {
	if publisher == nil {
		publisher = eventbus.LogPublisher{}
	}
	return &ReportService{
		repo:   repo,
		codes:  codes,
		store:  store,
		policy: policy,
		events: publisher,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PhotoPolicy returns the upload limits in force.
func (s *ReportService) PhotoPolicy() storage.PhotoPolicy {
	return s.policy
}

// Create validates raw create-form input and stores a new planning report.
func (s *ReportService) Create(ctx context.Context, actor Actor, raw map[string]any) (*domain.Report, error) {
	if err := auth.Authorize(actor.Role, auth.CapReportsCreate); err != nil {
		return nil, err
	}

	in, err := domain.ValidateCreate(raw)
	if err != nil {
		return nil, err
	}

	code, err := s.codes.Generate(ctx)
	if err != nil {
		return nil, err
	}

	report := domain.NewReport(in, code, s.now())
	if err := s.repo.Create(ctx, report); err != nil {
		return nil, err
	}

	s.publish(ctx, events.ReportCreated, report.ID.String(), events.ReportCreatedPayload{
		ReportID:  report.ID.String(),
		Code:      report.Code,
		Category:  string(report.Category),
		Status:    string(report.Status),
		CreatedBy: actor.UserID,
		CreatedAt: report.CreatedAt,
	})
	logger.Audit("report.create", actor.UserID, report.ID.String(), map[string]interface{}{
		"code":     report.Code,
		"category": report.Category,
	})

	return report, nil
}

// Get returns one report.
func (s *ReportService) Get(ctx context.Context, actor Actor, id string) (*domain.Report, error) {
	if err := auth.Authorize(actor.Role, auth.CapReportsView); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// List returns a page of reports and the total number matching filter.
func (s *ReportService) List(ctx context.Context, actor Actor, filter domain.ListFilter) ([]domain.Report, int, error) {
	if err := auth.Authorize(actor.Role, auth.CapReportsView); err != nil {
		return nil, 0, err
	}
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, filter.Normalize())
}

// Update applies raw edit-form input to an existing report.
//
// The optional "existingPhotos" list keeps only the named persisted photos and
// "uploadedPhotos" appends refs after them. A "version" that no longer matches
// the stored report fails with *domain.ConflictError.
func (s *ReportService) Update(ctx context.Context, actor Actor, id string, raw map[string]any) (*domain.Report, error) {
	if err := auth.Authorize(actor.Role, auth.CapReportsEdit); err != nil {
		return nil, err
	}

	in, err := domain.ValidateEdit(raw)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Version > 0 && in.Version != current.Version {
		return nil, &domain.ConflictError{ID: id, Expected: in.Version, Actual: current.Version}
	}

	photos, err := s.editPhotos(current, raw)
	if err != nil {
		return nil, err
	}

	next, err := domain.ApplyEdit(*current, in, photos, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &next, in.Version); err != nil {
		return nil, err
	}

	s.publish(ctx, events.ReportUpdated, id, events.ReportUpdatedPayload{
		ReportID:    id,
		Code:        next.Code,
		OldCategory: string(current.Category),
		NewCategory: string(next.Category),
		OldStatus:   string(current.Status),
		NewStatus:   string(next.Status),
		Progress:    next.Progress,
		Version:     next.Version,
		UpdatedBy:   actor.UserID,
		UpdatedAt:   next.UpdatedAt,
	})
	if current.Status != next.Status {
		s.publish(ctx, events.ReportStatusUpdated, id, events.ReportStatusUpdatedPayload{
			ReportID:  id,
			OldStatus: string(current.Status),
			NewStatus: string(next.Status),
			Progress:  next.Progress,
			ChangedBy: actor.UserID,
			ChangedAt: next.UpdatedAt,
		})
	}
	logger.Audit("report.update", actor.UserID, id, map[string]interface{}{
		"status":   next.Status,
		"progress": next.Progress,
		"version":  next.Version,
	})

	return &next, nil
}

func (s *ReportService) editPhotos(current *domain.Report, raw map[string]any) ([]string, error) {
	keep, hasKeep := domain.PhotoRefs(raw, "existingPhotos")
	uploaded, hasUploaded := domain.PhotoRefs(raw, "uploadedPhotos")
	if !hasKeep && !hasUploaded {
		return nil, nil
	}

	prefix := storage.PhotoPrefix(current.ID.String())
	for _, ref := range uploaded {
		if !strings.HasPrefix(ref, prefix) {
			return nil, &domain.ValidationError{Fields: map[string]string{"photos": "Foto tidak valid"}}
		}
	}

	set := domain.NewPhotoSet(current.Photos)
	if hasKeep {
		set.Retain(keep)
	}
	set.Attach(uploaded...)
	if err := s.policy.CheckCount(set.Count(), 0); err != nil {
		return nil, err
	}
	return set.Commit(), nil
}

// AttachPhotos checks, stores and appends uploaded photos to a report.
// Nothing is stored unless every file passes the photo policy, and stored
// files are removed again if the report cannot be updated.
func (s *ReportService) AttachPhotos(ctx context.Context, actor Actor, id string, files []Upload) (*domain.Report, error) {
	if err := auth.Authorize(actor.Role, auth.CapReportsEdit); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &domain.ValidationError{Fields: map[string]string{"photos": "Pilih minimal 1 foto"}}
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckCount(len(current.Photos), len(files)); err != nil {
		return nil, err
	}

	contentTypes := make([]string, len(files))
	for i, f := range files {
		ct, err := s.policy.Admit(f.Name, f.Data)
		if err != nil {
			return nil, err
		}
		contentTypes[i] = ct
	}

	refs := make([]string, 0, len(files))
	for i, f := range files {
		key, err := s.store.Upload(ctx, id, contentTypes[i], bytes.NewReader(f.Data))
		if err != nil {
			s.discard(ctx, id, refs)
			return nil, &domain.PersistenceError{Op: "upload photo", Err: err}
		}
		refs = append(refs, key)
	}

	next := domain.WithPhotos(*current, refs, s.now())
	if err := s.repo.Update(ctx, &next, current.Version); err != nil {
		s.discard(ctx, id, refs)
		return nil, err
	}

	s.publish(ctx, events.ReportPhotosAttached, id, events.ReportPhotosAttachedPayload{
		ReportID:   id,
		Photos:     refs,
		TotalCount: len(next.Photos),
		AttachedBy: actor.UserID,
		AttachedAt: next.UpdatedAt,
	})
	logger.Audit("report.photos.attach", actor.UserID, id, map[string]interface{}{
		"count": len(refs),
	})

	return &next, nil
}

// discard removes photos that were stored but never attached to the report.
func (s *ReportService) discard(ctx context.Context, reportID string, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"report_id": reportID,
				"key":       key,
			}).Warn("[PHOTO] failed to remove orphaned photo")
		}
	}
}

// Statistics returns report counts per category and status.
func (s *ReportService) Statistics(ctx context.Context, actor Actor) ([]domain.CategoryStatistics, error) {
	if err := auth.Authorize(actor.Role, auth.CapDashboard); err != nil {
		return nil, err
	}
	return s.repo.Statistics(ctx)
}

// publish emits an event. The report is already stored, so a broker failure
// is logged rather than returned.
func (s *ReportService) publish(ctx context.Context, eventType, reportID string, payload interface{}) {
	event, err := events.NewEvent(eventType, reportID, payload)
	if err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Error("[EVENT] failed to build event")
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"event_type": eventType,
			"report_id":  reportID,
		}).Warn("[EVENT] failed to publish event")
	}
}
