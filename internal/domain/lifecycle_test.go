package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSequence struct {
	next  map[int]int
	years []int
	err   error
}

func (s *stubSequence) Next(_ context.Context, year int) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.next == nil {
		s.next = map[int]int{}
	}
	s.next[year]++
	s.years = append(s.years, year)
	return s.next[year], nil
}

func createdPipeInspection(t *testing.T, now time.Time) Report {
	t.Helper()
	in, err := ValidateCreate(pipeInspectionForm())
	require.NoError(t, err)
	return *NewReport(in, FormatCode(7, now.Year()), now)
}

func TestNewReport_Defaults(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	r := createdPipeInspection(t, now)

	assert.Equal(t, StatusPlanning, r.Status)
	assert.Equal(t, 0, r.Progress)
	assert.Equal(t, "07/PEP82600/2025-SO", r.Code)
	assert.True(t, IsValidCode(r.Code))
	assert.Equal(t, now, r.CreatedAt)
	assert.Equal(t, now, r.UpdatedAt)
	assert.Equal(t, 1, r.Version)
	assert.NotNil(t, r.Photos)
	assert.Empty(t, r.Photos)
	assert.Equal(t, "Budi, Sari", r.ResponsiblePersonsText())
}

func TestTransition_StatusAndProgressAreIndependent(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	r := createdPipeInspection(t, now)

	next, err := Transition(r, StatusCompleted, 60, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, next.Status)
	assert.Equal(t, 60, next.Progress)

	next, err = Transition(next, StatusPlanning, 100, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusPlanning, next.Status)
	assert.Equal(t, 100, next.Progress)
}

func TestTransition_RejectsInvalidValues(t *testing.T) {
	now := time.Now()
	r := createdPipeInspection(t, now)

	_, err := Transition(r, Status("archived"), 101, now)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, msgStatus, verr.Fields["status"])
	assert.Equal(t, msgProgress, verr.Fields["progress"])

	_, err = Transition(r, StatusOngoing, -1, now)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, msgProgress, verr.Fields["progress"])
}

func TestTransition_UpdatedAtStrictlyAdvances(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	r := createdPipeInspection(t, now)

	same, err := Transition(r, StatusOngoing, 10, now)
	require.NoError(t, err)
	assert.True(t, same.UpdatedAt.After(r.UpdatedAt))

	earlier, err := Transition(same, StatusOngoing, 20, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, earlier.UpdatedAt.After(same.UpdatedAt))
	assert.Equal(t, 3, earlier.Version)
}

func TestCanTransition(t *testing.T) {
	for _, from := range ValidStatuses {
		for _, to := range ValidStatuses {
			assert.True(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition(StatusPlanning, Status("archived")))
	assert.False(t, CanTransition(Status(""), StatusOngoing))
}

func TestApplyEdit_CompletedWithPartialProgress(t *testing.T) {
	created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	r := createdPipeInspection(t, created)
	r.Photos = []string{"reports/a.jpg"}

	in, err := ValidateEdit(editInput(map[string]any{
		"title":    "Pipe Inspection Phase 2",
		"status":   "completed",
		"progress": 60,
		"latitude": -6.55,
	}))
	require.NoError(t, err)

	edited, err := ApplyEdit(r, in, nil, created.Add(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, r.ID, edited.ID)
	assert.Equal(t, r.Code, edited.Code)
	assert.Equal(t, r.CreatedAt, edited.CreatedAt)
	assert.True(t, edited.UpdatedAt.After(r.UpdatedAt))
	assert.Equal(t, StatusCompleted, edited.Status)
	assert.Equal(t, 60, edited.Progress)
	assert.Equal(t, "Pipe Inspection Phase 2", edited.Title)
	assert.Equal(t, []string{"reports/a.jpg"}, edited.Photos)
	assert.Equal(t, 2, edited.Version)
	require.NotNil(t, edited.Location.Latitude)
	assert.InDelta(t, -6.55, *edited.Location.Latitude, 1e-9)

	// the original is left untouched
	assert.Equal(t, "Pipe Inspection", r.Title)
	assert.Equal(t, StatusPlanning, r.Status)
}

func TestApplyEdit_CompletedReportCanBeEditedAgain(t *testing.T) {
	now := time.Now()
	r := createdPipeInspection(t, now)
	r.Status = StatusCompleted
	r.Progress = 100

	in, err := ValidateEdit(editInput(map[string]any{"status": "ongoing", "progress": 80}))
	require.NoError(t, err)

	edited, err := ApplyEdit(r, in, []string{}, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusOngoing, edited.Status)
	assert.Empty(t, edited.Photos)
}

func TestWithPhotos_AppendsInOrder(t *testing.T) {
	now := time.Now()
	r := createdPipeInspection(t, now)
	r.Photos = []string{"a"}

	next := WithPhotos(r, []string{"b", "c"}, now.Add(time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, next.Photos)
	assert.Equal(t, []string{"a"}, r.Photos)
	assert.Equal(t, r.Version+1, next.Version)
}

func TestCodeGenerator_UsesYearlySequence(t *testing.T) {
	seq := &stubSequence{}
	clock := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	gen := NewCodeGenerator(seq, func() time.Time { return clock })

	first, err := gen.Generate(context.Background())
	require.NoError(t, err)
	second, err := gen.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "01/PEP82600/2025-SO", first)
	assert.Equal(t, "02/PEP82600/2025-SO", second)

	clock = clock.Add(2 * time.Hour)
	third, err := gen.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "01/PEP82600/2026-SO", third)
	assert.Equal(t, []int{2025, 2025, 2026}, seq.years)
}

func TestCodeGenerator_SequenceFailure(t *testing.T) {
	gen := NewCodeGenerator(&stubSequence{err: errors.New("connection refused")}, nil)

	_, err := gen.Generate(context.Background())
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.EqualError(t, perr.Unwrap(), "connection refused")
}

func TestFormatCode_WidensPastNinetyNine(t *testing.T) {
	assert.Equal(t, "00/PEP82600/2025-SO", FormatCode(0, 2025))
	assert.Equal(t, "99/PEP82600/2025-SO", FormatCode(99, 2025))
	assert.Equal(t, "100/PEP82600/2025-SO", FormatCode(100, 2025))
	assert.True(t, IsValidCode(FormatCode(100, 2025)))
	assert.False(t, IsValidCode("7/PEP82600/2025-SO"))
	assert.False(t, IsValidCode("07/PEP82600/25-SO"))
}
