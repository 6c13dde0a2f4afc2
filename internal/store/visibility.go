package store

import (
	"sync"

	"apptcal/internal/model"
)

// VisibleEvent is an instance that passed the clinic filter, with render
// attributes resolved from its clinic at filter time.
type VisibleEvent struct {
	model.Appointment
	Color       string
	ClinicTitle string
}

// VisibilitySet is the per-clinic enable toggle. Toggles are local UI state
// and never persisted to the API.
type VisibilitySet struct {
	mu      sync.RWMutex
	order   []model.ID
	clinics map[model.ID]model.Clinic
	// hidden remembers disabled ids across directory refreshes, including
	// ids the directory does not currently list.
	hidden  map[model.ID]bool
	version uint64
}

// NewVisibilitySet returns an empty set. Clinics listed in disabled start
// hidden once they appear in the directory.
func NewVisibilitySet(disabled ...model.ID) *VisibilitySet {
	v := &VisibilitySet{
		clinics: make(map[model.ID]model.Clinic),
		hidden:  make(map[model.ID]bool),
	}
	for _, id := range disabled {
		v.hidden[id] = true
	}
	return v
}

// SetClinics replaces the clinic directory. Existing toggles survive;
// clinics seen for the first time start enabled unless marked hidden.
func (v *VisibilitySet) SetClinics(clinics []model.Clinic) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.order = v.order[:0]
	v.clinics = make(map[model.ID]model.Clinic, len(clinics))
	for _, c := range clinics {
		if c.ID == "" {
			continue
		}
		if _, dup := v.clinics[c.ID]; dup {
			continue
		}
		c.Enable = !v.hidden[c.ID]
		v.clinics[c.ID] = c
		v.order = append(v.order, c.ID)
	}
	v.version++
}

// SetEnabled toggles a clinic. It reports false if the clinic is not in the
// directory; the toggle is still remembered for when it appears.
func (v *VisibilitySet) SetEnabled(id model.ID, enabled bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if enabled {
		delete(v.hidden, id)
	} else {
		v.hidden[id] = true
	}
	v.version++

	c, ok := v.clinics[id]
	if !ok {
		return false
	}
	c.Enable = enabled
	v.clinics[id] = c
	return true
}

// Enabled reports whether events of the clinic are shown. Unknown clinics
// are never shown.
func (v *VisibilitySet) Enabled(id model.ID) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.clinics[id]
	return ok && c.Enable
}

// Clinics returns the directory in server order.
func (v *VisibilitySet) Clinics() []model.Clinic {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]model.Clinic, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.clinics[id])
	}
	return out
}

// Filter returns the subset of events whose clinic is known and enabled,
// keeping input order.
func (v *VisibilitySet) Filter(events []model.Appointment) []VisibleEvent {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]VisibleEvent, 0, len(events))
	for _, ev := range events {
		c, ok := v.clinics[ev.ClinicID]
		if !ok || !c.Enable {
			continue
		}
		out = append(out, VisibleEvent{
			Appointment: ev,
			Color:       c.Color,
			ClinicTitle: c.Title,
		})
	}
	return out
}

func (v *VisibilitySet) currentVersion() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}
