package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhotoSet_CommitKeepsExistingBeforePending(t *testing.T) {
	set := NewPhotoSet([]string{"a.jpg", "b.jpg", "c.jpg"})
	set.Retain([]string{"c.jpg", "a.jpg", "zzz.jpg"})
	set.Attach("d.png", " ", "e.png")

	assert.Equal(t, 4, set.Count())
	assert.Equal(t, []string{"a.jpg", "c.jpg", "d.png", "e.png"}, set.Commit())
}

func TestPhotoSet_DoesNotAliasInput(t *testing.T) {
	persisted := []string{"a.jpg", "b.jpg"}
	set := NewPhotoSet(persisted)
	set.Retain([]string{"b.jpg"})

	assert.Equal(t, []string{"a.jpg", "b.jpg"}, persisted)
}

func TestPhotoRefs(t *testing.T) {
	refs, ok := PhotoRefs(map[string]any{"existingPhotos": []any{"a", "", 3, " b "}}, "existingPhotos")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, refs)

	refs, ok = PhotoRefs(map[string]any{"existingPhotos": []any{}}, "existingPhotos")
	assert.True(t, ok)
	assert.Empty(t, refs)

	_, ok = PhotoRefs(map[string]any{}, "existingPhotos")
	assert.False(t, ok)
}

func TestListFilter_Normalize(t *testing.T) {
	f := ListFilter{}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, DefaultPerPage, f.PerPage)

	f = ListFilter{Page: 3, PerPage: 500}.Normalize()
	assert.Equal(t, MaxPerPage, f.PerPage)
	assert.Equal(t, 200, ListFilter{Page: 3, PerPage: 500}.Offset())
}

func TestListFilter_Validate(t *testing.T) {
	assert.NoError(t, ListFilter{}.Validate())
	assert.NoError(t, ListFilter{Category: CategoryUpgrade, Status: StatusDelayed}.Validate())

	err := ListFilter{Category: "kebersihan", Status: "pending"}.Validate()
	var verr *ValidationError
	if assert.ErrorAs(t, err, &verr) {
		assert.Equal(t, msgCategory, verr.Fields["category"])
		assert.Equal(t, msgStatus, verr.Fields["status"])
	}
}

func TestCategoryStatistics_AddNeverGoesNegative(t *testing.T) {
	s := CategoryStatistics{Category: CategoryRepair}
	s.Add(StatusOngoing, 1)
	s.Add(StatusOngoing, -1)
	s.Add(StatusOngoing, -1)
	s.Add(StatusDelayed, 1)

	assert.Equal(t, 0, s.Ongoing)
	assert.Equal(t, 1, s.Delayed)
	assert.Equal(t, 1, s.Total)
}
