package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/auth"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/domain"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/events"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/logger"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/repository"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/storage"
)

var (
	admin       = Actor{UserID: "1", Role: auth.RoleAdmin}
	responsible = Actor{UserID: "2", Role: auth.RoleResponsible}
	worker      = Actor{UserID: "3", Role: auth.RoleWorker}

	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 64)...)
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type failingStore struct{ storage.AttachmentStore }

func (failingStore) Upload(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

// trackingStore records the keys it stores and can fail the n-th upload.
type trackingStore struct {
	*storage.MemoryStore
	failOn  int
	uploads int
	keys    []string
}

func (s *trackingStore) Upload(ctx context.Context, reportID, contentType string, r io.Reader) (string, error) {
	s.uploads++
	if s.uploads == s.failOn {
		return "", errors.New("bucket unavailable")
	}
	key, err := s.MemoryStore.Upload(ctx, reportID, contentType, r)
	if err == nil {
		s.keys = append(s.keys, key)
	}
	return key, err
}

type staleRepository struct{ *repository.MemoryRepository }

func (r staleRepository) Update(_ context.Context, report *domain.Report, expectedVersion int) error {
	return &domain.ConflictError{ID: report.ID.String(), Expected: expectedVersion, Actual: expectedVersion + 1}
}

type fixture struct {
	svc   *ReportService
	repo  *repository.MemoryRepository
	store *storage.MemoryStore
	bus   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger.SetOutput(io.Discard)

	clock := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	repo := repository.NewMemoryRepository()
	store := storage.NewMemoryStore("http://localhost:8080/files")
	bus := &recordingPublisher{}
	codes := domain.NewCodeGenerator(repository.NewMemoryCodeSequence(), now)

	svc := NewReportService(repo, codes, store, storage.DefaultPhotoPolicy(), bus)
	svc.now = now
	return &fixture{svc: svc, repo: repo, store: store, bus: bus}
}

func pipeInspection() map[string]any {
	return map[string]any{
		"title":              "Pipe Inspection",
		"description":        "Routine inspection of pipeline section B",
		"category":           "perawatan",
		"startDate":          "2025-03-01",
		"endDate":            "2025-03-10",
		"workerCount":        "5",
		"responsiblePersons": "Budi, Sari",
		"locationName":       "Kilang Cilacap",
	}
}

func editOf(r *domain.Report, overrides map[string]any) map[string]any {
	form := map[string]any{
		"title":              r.Title,
		"description":        r.Description,
		"category":           string(r.Category),
		"startDate":          r.StartDate,
		"endDate":            r.EndDate,
		"workerCount":        r.WorkerCount,
		"responsiblePersons": r.ResponsiblePersonsText(),
		"locationName":       r.Location.Name,
		"riskLevel":          string(r.HSSEData.RiskLevel),
		"weatherCondition":   string(r.HSSEData.WeatherCondition),
		"safetyIncidents":    r.HSSEData.SafetyIncidents,
		"status":             string(r.Status),
		"progress":           r.Progress,
	}
	for k, v := range overrides {
		form[k] = v
	}
	return form
}

func TestCreate_PipeInspection(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.Create(context.Background(), responsible, pipeInspection())
	require.NoError(t, err)

	assert.Equal(t, "01/PEP82600/2025-SO", report.Code)
	assert.Equal(t, domain.StatusPlanning, report.Status)
	assert.Equal(t, 0, report.Progress)
	assert.Equal(t, []string{"Budi", "Sari"}, report.ResponsiblePersons)
	assert.Equal(t, domain.RiskMedium, report.HSSEData.RiskLevel)
	assert.Equal(t, domain.WeatherSunny, report.HSSEData.WeatherCondition)
	assert.Empty(t, report.Photos)
	assert.Equal(t, 1, report.Version)

	stored, err := f.repo.Get(context.Background(), report.ID.String())
	require.NoError(t, err)
	assert.Equal(t, report.Code, stored.Code)
	assert.Equal(t, []string{events.ReportCreated}, f.bus.types())

	second, err := f.svc.Create(context.Background(), admin, pipeInspection())
	require.NoError(t, err)
	assert.Equal(t, "02/PEP82600/2025-SO", second.Code)
}

func TestCreate_WorkerCanCreate(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.Create(context.Background(), worker, pipeInspection())
	require.NoError(t, err)
	assert.Equal(t, "01/PEP82600/2025-SO", report.Code)
	assert.Equal(t, []string{events.ReportCreated}, f.bus.types())
}

func TestCreate_UnknownRoleIsForbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), Actor{UserID: "9", Role: auth.Role("guest")}, pipeInspection())
	var aerr *domain.AuthorizationError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, auth.CapReportsCreate, auth.Capability(aerr.Capability))

	_, total, err := f.repo.List(context.Background(), domain.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, f.bus.types())
}

func TestCreate_InvalidInputStoresNothing(t *testing.T) {
	f := newFixture(t)
	form := pipeInspection()
	form["title"] = "   "
	form["description"] = "short"

	_, err := f.svc.Create(context.Background(), admin, form)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "title")
	assert.Contains(t, verr.Fields, "description")

	_, total, _ := f.repo.List(context.Background(), domain.ListFilter{})
	assert.Equal(t, 0, total)
}

func TestCreate_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.bus.err = errors.New("redis down")

	report, err := f.svc.Create(context.Background(), admin, pipeInspection())
	require.NoError(t, err)

	_, err = f.repo.Get(context.Background(), report.ID.String())
	assert.NoError(t, err)
}

func TestUpdate_CompletesReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, admin, pipeInspection())
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, responsible, created.ID.String(), editOf(created, map[string]any{
		"status":   "completed",
		"progress": "60",
	}))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, updated.Status)
	assert.Equal(t, 60, updated.Progress, "status and progress are independent")
	assert.Equal(t, created.Code, updated.Code)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.Equal(t, 2, updated.Version)

	assert.Equal(t, []string{events.ReportCreated, events.ReportUpdated, events.ReportStatusUpdated}, f.bus.types())
}

func TestUpdate_WithoutStatusChangePublishesOnlyUpdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, admin, pipeInspection())
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, admin, created.ID.String(), editOf(created, map[string]any{"title": "Pipe Inspection B"}))
	require.NoError(t, err)
	assert.Equal(t, []string{events.ReportCreated, events.ReportUpdated}, f.bus.types())
}

func TestUpdate_ValidationFailureLeavesReportUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, admin, pipeInspection())
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, admin, created.ID.String(), editOf(created, map[string]any{"progress": 150}))
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "progress")

	stored, err := f.repo.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, 0, stored.Progress)
}

func TestUpdate_UnknownReport(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), admin, pipeInspection())
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), admin, "6f1c1d0e-8a43-4d55-9c59-0c1e3f4b5a6d", editOf(created, nil))
	var nferr *domain.NotFoundError
	assert.True(t, errors.As(err, &nferr))
}

func TestUpdate_StaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, admin, pipeInspection())
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, admin, created.ID.String(), editOf(created, map[string]any{"title": "First", "version": 1}))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, responsible, created.ID.String(), editOf(created, map[string]any{"title": "Second", "version": 1}))
	var cerr *domain.ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 1, cerr.Expected)
	assert.Equal(t, 2, cerr.Actual)

	stored, err := f.repo.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "First", stored.Title)

	// without a version stamp the last write wins
	_, err = f.svc.Update(ctx, responsible, created.ID.String(), editOf(created, map[string]any{"title": "Second"}))
	require.NoError(t, err)
}

func TestUpdate_WorkerCanEdit(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), admin, pipeInspection())
	require.NoError(t, err)

	updated, err := f.svc.Update(context.Background(), worker, created.ID.String(), editOf(created, map[string]any{
		"status":   "ongoing",
		"progress": 30,
	}))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOngoing, updated.Status)
	assert.Equal(t, 30, updated.Progress)
}

func TestUpdate_UnknownRoleIsForbiddenBeforeValidation(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), admin, pipeInspection())
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), Actor{UserID: "9", Role: auth.Role("guest")}, created.ID.String(), map[string]any{})
	var aerr *domain.AuthorizationError
	assert.True(t, errors.As(err, &aerr), "authorization is checked before validation")
}

func TestUpdate_ExistingPhotosAreRetained(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, admin, pipeInspection())
	require.NoError(t, err)

	withPhotos, err := f.svc.AttachPhotos(ctx, admin, created.ID.String(), []Upload{
		{Name: "a.jpg", Data: jpegBytes},
		{Name: "b.png", Data: pngBytes},
	})
	require.NoError(t, err)
	require.Len(t, withPhotos.Photos, 2)

	updated, err := f.svc.Update(ctx, admin, created.ID.String(), editOf(withPhotos, map[string]any{
		"existingPhotos": []any{withPhotos.Photos[1]},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{withPhotos.Photos[1]}, updated.Photos)

	untouched, err := f.svc.Update(ctx, admin, created.ID.String(), editOf(updated, map[string]any{"title": "Renamed"}))
	require.NoError(t, err)
	assert.Equal(t, updated.Photos, untouched.Photos)
}

func TestUpdate_TooManyPhotos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, admin, pipeInspection())
	require.NoError(t, err)

	prefix := storage.PhotoPrefix(created.ID.String())
	refs := make([]any, 11)
	for i := range refs {
		refs[i] = prefix + string(rune('a'+i)) + ".jpg"
	}
	_, err = f.svc.Update(ctx, admin, created.ID.String(), editOf(created, map[string]any{"uploadedPhotos": refs}))
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Maksimal 10 foto", verr.Fields["photos"])

	updated, err := f.svc.Update(ctx, admin, created.ID.String(), editOf(created, map[string]any{"uploadedPhotos": refs[:2]}))
	require.NoError(t, err)
	assert.Equal(t, []string{prefix + "a.jpg", prefix + "b.jpg"}, updated.Photos)
}

func TestUpdate_RejectsForeignPhotoRefs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, admin, pipeInspection())
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, admin, created.ID.String(), editOf(created, map[string]any{
		"uploadedPhotos": []any{"reports/another-report/a.jpg"},
	}))
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Foto tidak valid", verr.Fields["photos"])
}

func TestAttachPhotos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, admin, pipeInspection())
	require.NoError(t, err)

	updated, err := f.svc.AttachPhotos(ctx, responsible, created.ID.String(), []Upload{{Name: "site.jpg", Data: jpegBytes}})
	require.NoError(t, err)
	require.Len(t, updated.Photos, 1)
	assert.Equal(t, 2, updated.Version)

	rc, contentType, err := f.store.Open(ctx, updated.Photos[0])
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	assert.True(t, bytes.Equal(jpegBytes, data))

	assert.Contains(t, f.bus.types(), events.ReportPhotosAttached)
}

func TestAttachPhotos_RejectsWholeBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, admin, pipeInspection())
	require.NoError(t, err)

	_, err = f.svc.AttachPhotos(ctx, admin, created.ID.String(), []Upload{
		{Name: "ok.jpg", Data: jpegBytes},
		{Name: "notes.txt", Data: []byte("just some text, not an image")},
	})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields["photos"], "notes.txt")

	stored, err := f.repo.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Empty(t, stored.Photos)

	big := append(append([]byte{}, jpegBytes...), make([]byte, 2<<20)...)
	_, err = f.svc.AttachPhotos(ctx, admin, created.ID.String(), []Upload{{Name: "big.jpg", Data: big}})
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields["photos"], "2MB")

	_, err = f.svc.AttachPhotos(ctx, admin, created.ID.String(), nil)
	require.True(t, errors.As(err, &verr))
}

func TestAttachPhotos_StoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, admin, pipeInspection())
	require.NoError(t, err)

	f.svc.store = failingStore{}
	_, err = f.svc.AttachPhotos(ctx, admin, created.ID.String(), []Upload{{Name: "a.jpg", Data: jpegBytes}})
	var perr *domain.PersistenceError
	assert.True(t, errors.As(err, &perr))
}

func assertRemoved(t *testing.T, store storage.AttachmentStore, keys []string) {
	t.Helper()
	for _, key := range keys {
		_, _, err := store.Open(context.Background(), key)
		assert.ErrorIs(t, err, storage.ErrNotFound, key)
	}
}

func TestAttachPhotos_PartialUploadIsRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, admin, pipeInspection())
	require.NoError(t, err)

	store := &trackingStore{MemoryStore: f.store, failOn: 2}
	f.svc.store = store
	_, err = f.svc.AttachPhotos(ctx, admin, created.ID.String(), []Upload{
		{Name: "a.jpg", Data: jpegBytes},
		{Name: "b.png", Data: pngBytes},
	})
	var perr *domain.PersistenceError
	require.True(t, errors.As(err, &perr))

	require.Len(t, store.keys, 1)
	assertRemoved(t, f.store, store.keys)
}

func TestAttachPhotos_ConflictRemovesStoredPhotos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, admin, pipeInspection())
	require.NoError(t, err)

	store := &trackingStore{MemoryStore: f.store}
	f.svc.store = store
	f.svc.repo = staleRepository{f.repo}
	_, err = f.svc.AttachPhotos(ctx, admin, created.ID.String(), []Upload{
		{Name: "a.jpg", Data: jpegBytes},
		{Name: "b.png", Data: pngBytes},
	})
	var cerr *domain.ConflictError
	require.True(t, errors.As(err, &cerr))

	require.Len(t, store.keys, 2)
	assertRemoved(t, f.store, store.keys)
	assert.NotContains(t, f.bus.types(), events.ReportPhotosAttached)
}

func TestListAndStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, admin, pipeInspection())
		require.NoError(t, err)
	}
	upgrade := pipeInspection()
	upgrade["category"] = "upgrading"
	_, err := f.svc.Create(ctx, admin, upgrade)
	require.NoError(t, err)

	reports, total, err := f.svc.List(ctx, worker, domain.ListFilter{Category: domain.CategoryMaintenance, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, reports, 2)

	_, _, err = f.svc.List(ctx, worker, domain.ListFilter{Status: "pending"})
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))

	stats, err := f.svc.Statistics(ctx, worker)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 3, stats[0].Planning)

	_, err = f.svc.Statistics(ctx, Actor{UserID: "9", Role: "guest"})
	var aerr *domain.AuthorizationError
	assert.True(t, errors.As(err, &aerr))
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), admin, pipeInspection())
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), worker, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.Code, got.Code)

	_, err = f.svc.Get(context.Background(), worker, "missing")
	var nferr *domain.NotFoundError
	assert.True(t, errors.As(err, &nferr))
}
