// Package shell is the calendar composition root. It wires the event
// store, clinic visibility, input classification, navigation, optimistic
// mutation and series creation to the appointment API.
package shell

import (
	"context"
	"errors"
	"fmt"
	"time"

	"apptcal/internal/api"
	"apptcal/internal/ics"
	"apptcal/internal/interaction"
	appLog "apptcal/internal/log"
	"apptcal/internal/metrics"
	"apptcal/internal/model"
	"apptcal/internal/mutation"
	"apptcal/internal/navigation"
	"apptcal/internal/notify"
	"apptcal/internal/recurrence"
	"apptcal/internal/series"
	"apptcal/internal/store"
)

// API is the appointment REST collaborator.
type API interface {
	CalendarData(ctx context.Context) (api.CalendarData, error)
	Appointment(ctx context.Context, id model.ID) (map[string]any, error)
	Token(ctx context.Context) (string, error)
	Create(ctx context.Context, token string, req api.CreateRequest) (api.Created, error)
	PatchTimes(ctx context.Context, token string, id model.ID, start, end time.Time) error
	PatchDetails(ctx context.Context, token string, id model.ID, p api.DetailsPatch) error
	Delete(ctx context.Context, token string, id model.ID) error
}

// Options configures a Shell. API is required.
type Options struct {
	API      API
	Location *time.Location

	DoubleClickWindow time.Duration
	Recurrence        recurrence.Config
	Strategy          series.Strategy
	ClinicsDisabled   []model.ID

	Notifier *notify.Feed
	Metrics  *metrics.CalendarMetrics

	// OnLayout runs after every drag/resize outcome.
	OnLayout func()
	// Now is the clock for "today" paging.
	Now func() time.Time
}

// Shell owns one calendar session.
type Shell struct {
	api     API
	loc     *time.Location
	feed    *notify.Feed
	metrics *metrics.CalendarMetrics

	visibility *store.VisibilitySet
	store      *store.Store
	classifier *interaction.Classifier
	pager      *navigation.Pager
	navigator  *navigation.Controller
	mutations  *mutation.Controller
	creator    *series.Creator
	onLayout   func()

	refresher refresher
}

func New(opts Options) (*Shell, error) {
	if opts.API == nil {
		return nil, errors.New("shell: API is required")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	feed := opts.Notifier
	if feed == nil {
		feed = notify.NewFeed(notify.DefaultCapacity)
	}
	rc := opts.Recurrence
	if rc.Location == nil {
		rc.Location = loc
	}

	vis := store.NewVisibilitySet(opts.ClinicsDisabled...)
	st := store.New(vis)
	pager := navigation.NewPager(loc, opts.Now)

	s := &Shell{
		api:        opts.API,
		loc:        loc,
		feed:       feed,
		metrics:    opts.Metrics,
		visibility: vis,
		store:      st,
		classifier: interaction.NewClassifier(opts.DoubleClickWindow),
		pager:      pager,
		navigator:  navigation.NewController(pager, loc),
		mutations: mutation.NewController(mutation.Options{
			Tokens:   opts.API,
			Patcher:  opts.API,
			Events:   st,
			Notifier: feed,
			Metrics:  opts.Metrics,
			Location: loc,
		}),
		creator: series.NewCreator(series.Options{
			Tokens:     opts.API,
			Poster:     opts.API,
			Strategy:   opts.Strategy,
			Recurrence: rc,
			Metrics:    opts.Metrics,
		}),
		onLayout: opts.OnLayout,
	}
	return s, nil
}

func (s *Shell) Location() *time.Location { return s.loc }
func (s *Shell) Notifications() *notify.Feed { return s.feed }

// Refresh fetches calendar_data and replaces the store wholesale. On
// failure the store is cleared into an errored state.
func (s *Shell) Refresh(ctx context.Context) error {
	started := time.Now()
	data, err := s.api.CalendarData(ctx)
	s.metrics.ObserveFetch(err == nil, time.Since(started).Seconds())
	if err != nil {
		s.store.Clear(err)
		s.navigator.EventsChanged(0)
		s.metrics.SetVisible(0)
		s.feed.Failure("Could not load the calendar", err)
		return err
	}

	s.visibility.SetClinics(data.Clinics())
	s.store.ReplaceAll(data.Appointments(s.loc))
	visible := len(s.store.Visible())
	s.metrics.SetVisible(visible)
	s.navigator.EventsChanged(visible)
	appLog.Info("calendar refreshed", "events", s.store.Len(), "visible", visible, "clinics", len(data.Resources))
	return nil
}

// Events returns the filtered, colored events and the last fetch error.
func (s *Shell) Events() ([]store.VisibleEvent, error) {
	return s.store.Visible(), s.store.Err()
}

func (s *Shell) Clinics() []model.Clinic { return s.visibility.Clinics() }

// SetClinicEnabled toggles a clinic; false means the clinic is unknown.
func (s *Shell) SetClinicEnabled(id model.ID, enabled bool) bool {
	if !s.visibility.SetEnabled(id, enabled) {
		return false
	}
	visible := len(s.store.Visible())
	s.metrics.SetVisible(visible)
	s.navigator.EventsChanged(visible)
	return true
}

// Export renders the visible calendar as iCalendar.
func (s *Shell) Export(name string) string {
	return ics.Export(s.store.Visible(), ics.ExportOptions{Name: name, Location: s.loc})
}

// PointerResult is the shell's response to one input.
type PointerResult struct {
	Intent   interaction.Intent
	View     *model.ViewState
	Detail   map[string]any
	Mutation *GestureResult
}

// HandlePointer classifies p and carries out navigation, edit-detail
// loading and drop/resize mutations. Create intents are returned for the
// caller to open its dialog.
func (s *Shell) HandlePointer(ctx context.Context, p interaction.Pointer) (PointerResult, error) {
	in := s.classifier.Classify(p)
	res := PointerResult{Intent: in}

	switch in.Kind {
	case interaction.IntentNavigate:
		v, err := s.navigator.Navigate(model.ViewState{FocusDate: in.Date, Mode: in.View})
		res.View = &v
		if err != nil {
			return res, err
		}
	case interaction.IntentEdit:
		detail, err := s.api.Appointment(ctx, in.EventID)
		if err != nil {
			s.feed.Failure("Could not load appointment", err)
			return res, err
		}
		res.Detail = detail
	case interaction.IntentDrop:
		g := s.Drag(ctx, in.EventID, in.NewStart, in.NewEnd)
		res.Mutation = &g
	case interaction.IntentResizeEnd:
		g := s.Resize(ctx, in.EventID, in.NewStart, in.NewEnd)
		res.Mutation = &g
	}
	return res, nil
}

// Create persists a dialog draft and refetches if anything was created.
func (s *Shell) Create(ctx context.Context, d series.Draft) (series.Result, error) {
	res, err := s.creator.Create(ctx, d)

	var perr *series.PartialFailureError
	switch {
	case errors.As(err, &perr):
		s.feed.Failure(fmt.Sprintf("Created %d of %d appointments", perr.Created, perr.Created+perr.Failed), err)
	case errors.Is(err, recurrence.ErrOverflow):
		s.feed.Failure("Too many occurrences in this series", err)
	case err != nil:
		s.feed.Failure("Could not create appointment", err)
	case res.Created > 1:
		s.feed.Success(fmt.Sprintf("%d appointments created", res.Created))
	default:
		s.feed.Success("Appointment created")
	}

	if res.Created > 0 {
		s.refreshAfterWrite(ctx)
	}
	return res, err
}

// UpdateDetails applies a dialog edit (status, type, notes).
func (s *Shell) UpdateDetails(ctx context.Context, id model.ID, p api.DetailsPatch) error {
	token, err := s.api.Token(ctx)
	if err != nil {
		s.feed.Failure("Could not update appointment", err)
		return fmt.Errorf("%w: %w", mutation.ErrToken, err)
	}
	if err := s.api.PatchDetails(ctx, token, id, p); err != nil {
		s.feed.Failure("Could not update appointment", err)
		return err
	}
	s.store.ApplyPatch(id, store.Patch{Status: p.Status, Notes: p.Notes, AppointmentTypeID: p.AppointmentType})
	s.feed.Success("Appointment updated")
	s.refreshAfterWrite(ctx)
	return nil
}

// Delete removes an instance and refetches.
func (s *Shell) Delete(ctx context.Context, id model.ID) error {
	token, err := s.api.Token(ctx)
	if err != nil {
		s.feed.Failure("Could not delete appointment", err)
		return fmt.Errorf("%w: %w", mutation.ErrToken, err)
	}
	if err := s.api.Delete(ctx, token, id); err != nil {
		s.feed.Failure("Could not delete appointment", err)
		return err
	}
	s.feed.Success("Appointment deleted")
	s.refreshAfterWrite(ctx)
	return nil
}

// refreshAfterWrite reconciles with the server. The write already
// succeeded, so a failed refetch is only logged beyond its own toast.
func (s *Shell) refreshAfterWrite(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		appLog.Warn("refetch after write failed", "error", err.Error())
	}
}
