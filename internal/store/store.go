package store

import (
	"sync"
	"time"

	appLog "apptcal/internal/log"
	"apptcal/internal/model"
)

// Patch carries the fields of an optimistic or dialog-driven update. Nil
// fields are left untouched.
type Patch struct {
	Start             *time.Time
	End               *time.Time
	Status            *model.Status
	Notes             *string
	AppointmentTypeID *model.ID
}

// Store owns the canonical instance collection for the session and caches
// the derived visible collection.
type Store struct {
	visibility *VisibilitySet

	mu       sync.RWMutex
	events   []model.Appointment
	index    map[model.ID]int
	fetchErr error
	version  uint64

	// Derived visible set, valid while both versions match.
	visible    []VisibleEvent
	visibleFor [2]uint64
	hasVisible bool
}

// New returns an empty store filtered through vis.
func New(vis *VisibilitySet) *Store {
	if vis == nil {
		vis = NewVisibilitySet()
	}
	return &Store{
		visibility: vis,
		index:      make(map[model.ID]int),
	}
}

// Visibility returns the set the store filters through.
func (s *Store) Visibility() *VisibilitySet { return s.visibility }

// ReplaceAll swaps in a freshly fetched collection and clears any fetch
// error. The last call wins regardless of request order.
func (s *Store) ReplaceAll(events []model.Appointment) {
	cp := make([]model.Appointment, len(events))
	copy(cp, events)

	idx := make(map[model.ID]int, len(cp))
	for i, ev := range cp {
		idx[ev.ID] = i
	}

	s.mu.Lock()
	s.events = cp
	s.index = idx
	s.fetchErr = nil
	s.version++
	s.mu.Unlock()
}

// Clear empties the store and records why, so the calendar shows an
// errored state instead of stale data.
func (s *Store) Clear(err error) {
	s.mu.Lock()
	s.events = nil
	s.index = make(map[model.ID]int)
	s.fetchErr = err
	s.version++
	s.mu.Unlock()
}

// Err returns the error of the last failed fetch, or nil after a
// successful ReplaceAll.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchErr
}

// ApplyPatch updates an existing instance in place. Unknown ids are
// ignored; it reports whether anything was patched.
func (s *Store) ApplyPatch(id model.ID, p Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		appLog.Debug("store: patch for unknown id ignored", "id", id)
		return false
	}
	ev := s.events[i]
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.End != nil {
		ev.End = *p.End
	}
	if p.Status != nil {
		ev.Status = *p.Status
	}
	if p.Notes != nil {
		ev.Notes = *p.Notes
	}
	if p.AppointmentTypeID != nil {
		ev.AppointmentTypeID = *p.AppointmentTypeID
	}
	s.events[i] = ev
	s.version++
	return true
}

// Get returns the instance with the given id.
func (s *Store) Get(id model.ID) (model.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return model.Appointment{}, false
	}
	return s.events[i], true
}

// All returns a copy of every instance, visible or not.
func (s *Store) All() []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Appointment, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of instances held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Visible returns the filtered collection, recomputing it when either the
// events or the visibility toggles changed since the last call.
func (s *Store) Visible() []VisibleEvent {
	visVer := s.visibility.currentVersion()

	s.mu.RLock()
	if s.hasVisible && s.visibleFor == [2]uint64{s.version, visVer} {
		out := append([]VisibleEvent(nil), s.visible...)
		s.mu.RUnlock()
		return out
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = s.visibility.Filter(s.events)
	s.visibleFor = [2]uint64{s.version, visVer}
	s.hasVisible = true
	return append([]VisibleEvent(nil), s.visible...)
}
