package shell

import (
	"context"
	"time"

	"apptcal/internal/model"
	"apptcal/internal/mutation"
)

// GestureResult tells the front-end where a dragged or resized event must
// end up. Reverted means it has to be put back to Start/End. Start and End
// are omitted when the event is not in the calendar.
type GestureResult struct {
	ID        model.ID   `json:"id"`
	Confirmed bool       `json:"confirmed"`
	Reverted  bool       `json:"reverted"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// gestureSurface records what the mutation controller did to the rendered
// event for one gesture.
// The front-end has already moved the element, so Move has nothing to do.
type gestureSurface struct {
	reverted bool
	layout   func()
}

func (g *gestureSurface) Move(model.ID, time.Time, time.Time) {}
func (g *gestureSurface) Revert(model.ID)                     { g.reverted = true }

func (g *gestureSurface) Relayout() {
	if g.layout != nil {
		g.layout()
	}
}

// Drag applies a drop of an existing event at a new time.
func (s *Shell) Drag(ctx context.Context, id model.ID, start, end time.Time) GestureResult {
	return s.gesture(ctx, mutation.KindDrag, id, start, end)
}

// Resize applies a new duration to an existing event.
func (s *Shell) Resize(ctx context.Context, id model.ID, start, end time.Time) GestureResult {
	return s.gesture(ctx, mutation.KindResize, id, start, end)
}

func (s *Shell) gesture(ctx context.Context, kind mutation.Kind, id model.ID, start, end time.Time) GestureResult {
	surface := &gestureSurface{layout: s.onLayout}

	var out mutation.Outcome
	if kind == mutation.KindResize {
		out = s.mutations.ApplyResize(ctx, surface, id, start, end)
	} else {
		out = s.mutations.ApplyDrag(ctx, surface, id, start, end)
	}

	res := GestureResult{
		ID:        id,
		Confirmed: out.Confirmed,
		Reverted:  surface.reverted,
	}
	if !out.Start.IsZero() && !out.End.IsZero() {
		start, end := out.Start, out.End
		res.Start, res.End = &start, &end
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
	}
	return res
}
