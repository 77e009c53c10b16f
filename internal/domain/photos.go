package domain

import (
	"strings"
)

// PhotoSet tracks a report's photos during an edit. Persisted photos and
// newly attached ones are kept apart until Commit.
type PhotoSet struct {
	existing []string
	pending  []string
}

// NewPhotoSet starts an edit from the persisted photos.
func NewPhotoSet(existing []string) *PhotoSet {
	return &PhotoSet{existing: copyStrings(existing), pending: []string{}}
}

// Retain drops every existing photo not listed in keep. Order is preserved
// and unknown refs in keep are ignored.
func (s *PhotoSet) Retain(keep []string) {
	wanted := make(map[string]bool, len(keep))
	for _, ref := range keep {
		wanted[ref] = true
	}
	kept := s.existing[:0]
	for _, ref := range s.existing {
		if wanted[ref] {
			kept = append(kept, ref)
		}
	}
	s.existing = kept
}

// Attach queues newly uploaded refs. Blank refs are skipped.
func (s *PhotoSet) Attach(refs ...string) {
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			s.pending = append(s.pending, ref)
		}
	}
}

func (s *PhotoSet) Count() int { return len(s.existing) + len(s.pending) }

// Commit returns existing photos followed by pending ones.
func (s *PhotoSet) Commit() []string {
	out := make([]string, 0, s.Count())
	out = append(out, s.existing...)
	return append(out, s.pending...)
}

// PhotoRefs reads an optional list of photo refs from raw form input. ok is
// false when key is absent.
func PhotoRefs(raw map[string]any, key string) (refs []string, ok bool) {
	v, present := raw[key]
	if !present || v == nil {
		return nil, false
	}
	refs = []string{}
	switch list := v.(type) {
	case []string:
		for _, ref := range list {
			if ref = strings.TrimSpace(ref); ref != "" {
				refs = append(refs, ref)
			}
		}
	case []any:
		for _, item := range list {
			if ref, isString := item.(string); isString {
				if ref = strings.TrimSpace(ref); ref != "" {
					refs = append(refs, ref)
				}
			}
		}
	case string:
		for _, ref := range strings.Split(list, ",") {
			if ref = strings.TrimSpace(ref); ref != "" {
				refs = append(refs, ref)
			}
		}
	}
	return refs, true
}
