package mutation

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "apptcal/internal/log"
	"apptcal/internal/metrics"
	"apptcal/internal/model"
	"apptcal/internal/notify"
	"apptcal/internal/store"
)

var (
	// ErrToken blocks a mutation before any optimistic state is applied.
	ErrToken = errors.New("mutation: token acquisition failed")
	// ErrRejected means the PATCH failed and the surface was reverted.
	ErrRejected = errors.New("mutation: rejected")
)

// Kind distinguishes the gesture being applied.
type Kind string

const (
	KindDrag   Kind = "drag"
	KindResize Kind = "resize"
)

// TokenIssuer hands out a fresh anti-forgery token per mutation.
type TokenIssuer interface {
	Token(ctx context.Context) (string, error)
}

// Patcher persists new start/end times.
type Patcher interface {
	PatchTimes(ctx context.Context, token string, id model.ID, start, end time.Time) error
}

// Events is the store view the controller needs.
type Events interface {
	Get(id model.ID) (model.Appointment, bool)
	ApplyPatch(id model.ID, p store.Patch) bool
}

// Surface is the render surface. The drag library has already moved the
// element when a gesture arrives; Move makes the rendered event match the
// gesture and Revert puts it back to its pre-gesture position and size.
type Surface interface {
	Move(id model.ID, start, end time.Time)
	Revert(id model.ID)
	// Relayout runs the post-render layout pass that keeps the all-day
	// lane in sync with the grid.
	Relayout()
}

// Outcome reports how a gesture ended and where the event now renders.
type Outcome struct {
	Kind      Kind
	EventID   model.ID
	Confirmed bool
	// Start and End are where the event ends up; zero for unknown ids.
	Start     time.Time
	End       time.Time
	Err       error
}

// Controller applies drag and resize gestures optimistically.
type Controller struct {
	tokens   TokenIssuer
	patcher  Patcher
	events   Events
	notifier notify.Notifier
	metrics  *metrics.CalendarMetrics
	loc      *time.Location
}

// Options wires a Controller. Metrics and Location are optional.
type Options struct {
	Tokens   TokenIssuer
	Patcher  Patcher
	Events   Events
	Notifier notify.Notifier
	Metrics  *metrics.CalendarMetrics
	Location *time.Location
}

func NewController(opts Options) *Controller {
	if opts.Tokens == nil || opts.Patcher == nil || opts.Events == nil || opts.Notifier == nil {
		panic("mutation: tokens, patcher, events and notifier are required")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Controller{
		tokens:   opts.Tokens,
		patcher:  opts.Patcher,
		events:   opts.Events,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		loc:      loc,
	}
}

// ApplyDrag moves an event to a new start/end.
func (c *Controller) ApplyDrag(ctx context.Context, s Surface, id model.ID, newStart, newEnd time.Time) Outcome {
	return c.apply(ctx, s, KindDrag, id, newStart, newEnd)
}

// ApplyResize changes an event's duration.
func (c *Controller) ApplyResize(ctx context.Context, s Surface, id model.ID, newStart, newEnd time.Time) Outcome {
	return c.apply(ctx, s, KindResize, id, newStart, newEnd)
}

func (c *Controller) apply(ctx context.Context, s Surface, kind Kind, id model.ID, newStart, newEnd time.Time) Outcome {
	// Relayout after every outcome; it has no bearing on correctness.
	defer s.Relayout()

	orig, known := c.events.Get(id)
	out := Outcome{Kind: kind, EventID: id, Start: orig.Start, End: orig.End}

	if known && orig.AllDay {
		moved := orig
		moved.Start, moved.End = newStart, newEnd
		moved.NormalizeAllDay(c.loc)
		newStart, newEnd = moved.Start, moved.End
	}

	if !newEnd.After(newStart) {
		s.Revert(id)
		out.Err = fmt.Errorf("%w: end must be after start", ErrRejected)
		c.fail(kind, id, out.Err)
		return out
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		// The drag library moved the element; undo that, nothing else was applied.
		s.Revert(id)
		out.Err = fmt.Errorf("%w: %w", ErrToken, err)
		c.fail(kind, id, out.Err)
		return out
	}

	s.Move(id, newStart, newEnd)

	if err := c.patcher.PatchTimes(ctx, token, id, newStart, newEnd); err != nil {
		s.Revert(id)
		out.Err = fmt.Errorf("%w: %w", ErrRejected, err)
		c.fail(kind, id, out.Err)
		return out
	}

	c.events.ApplyPatch(id, store.Patch{Start: &newStart, End: &newEnd})
	out.Confirmed = true
	out.Start, out.End = newStart, newEnd

	c.metrics.ObserveMutation(string(kind), true)
	appLog.Info("mutation confirmed", "kind", kind, "id", id, "start", newStart.Format(time.RFC3339), "end", newEnd.Format(time.RFC3339))
	c.notifier.Success(successMessage(kind))
	return out
}

func (c *Controller) fail(kind Kind, id model.ID, err error) {
	c.metrics.ObserveMutation(string(kind), false)
	appLog.Error("mutation failed", err, "kind", kind, "id", id)
	c.notifier.Failure(failureMessage(kind), err)
}

func successMessage(kind Kind) string {
	if kind == KindResize {
		return "Appointment duration updated"
	}
	return "Appointment moved"
}

func failureMessage(kind Kind) string {
	if kind == KindResize {
		return "Could not change appointment duration"
	}
	return "Could not move appointment"
}
