package domain

import (
	"time"
)

// CanTransition reports whether a report may move from one status to another.
// The lifecycle is permissive: any valid status may follow any other,
// including leaving completed.
func CanTransition(from, to Status) bool {
	return IsValidStatus(string(from)) && IsValidStatus(string(to))
}

// Transition returns a copy of current with the proposed status and progress
// applied. Status and progress are set independently.
func Transition(current Report, status Status, progress int, now time.Time) (Report, error) {
	fields := map[string]string{}
	if !IsValidStatus(string(status)) {
		fields["status"] = msgStatus
	}
	if progress < 0 || progress > 100 {
		fields["progress"] = msgProgress
	}
	if len(fields) > 0 {
		return Report{}, &ValidationError{Fields: fields}
	}

	next := current.clone()
	next.Status = status
	next.Progress = progress
	next.touch(current, now)
	return next, nil
}

// ApplyEdit applies a validated edit to current. id, code and createdAt are
// kept; every other field comes from in. A non-nil photos replaces the
// photo list, nil keeps the current one.
func ApplyEdit(current Report, in ReportInput, photos []string, now time.Time) (Report, error) {
	next, err := Transition(current, in.Status, in.Progress, now)
	if err != nil {
		return Report{}, err
	}

	next.Title = in.Title
	next.Description = in.Description
	next.Category = in.Category
	next.StartDate = in.StartDate
	next.EndDate = in.EndDate
	next.WorkerCount = in.WorkerCount
	next.ResponsiblePersons = copyStrings(in.ResponsiblePersons)
	next.Location = in.Location.clone()
	next.HSSEData = in.HSSE
	if photos != nil {
		next.Photos = copyStrings(photos)
	}
	return next, nil
}

// WithPhotos returns a copy of current with refs appended to its photos.
func WithPhotos(current Report, refs []string, now time.Time) Report {
	next := current.clone()
	next.Photos = append(next.Photos, refs...)
	next.touch(current, now)
	return next
}

// touch bumps the version and moves updatedAt strictly past the previous value.
func (r *Report) touch(prev Report, now time.Time) {
	if !now.After(prev.UpdatedAt) {
		now = prev.UpdatedAt.Add(time.Microsecond)
	}
	r.UpdatedAt = now
	r.Version = prev.Version + 1
}

func (r Report) clone() Report {
	out := r
	out.ResponsiblePersons = copyStrings(r.ResponsiblePersons)
	out.Photos = copyStrings(r.Photos)
	out.Location = r.Location.clone()
	return out
}

func (l Location) clone() Location {
	out := Location{Name: l.Name}
	if l.Latitude != nil {
		lat := *l.Latitude
		out.Latitude = &lat
	}
	if l.Longitude != nil {
		lng := *l.Longitude
		out.Longitude = &lng
	}
	return out
}
