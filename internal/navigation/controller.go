// Package navigation maps URL parameters, drill-down clicks and toolbar
// paging onto the calendar's focus date and view mode.
package navigation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	appLog "apptcal/internal/log"
	"apptcal/internal/model"
)

// Controller keeps the authoritative {focusDate, viewMode}. The render
// surface is driven through it and read back after paging.
type Controller struct {
	surface Surface
	loc     *time.Location

	mu      sync.Mutex
	state   model.ViewState
	pending *model.ViewState
	events  int
}

func NewController(s Surface, loc *time.Location) *Controller {
	if loc == nil {
		loc = time.Local
	}
	c := &Controller{surface: s, loc: loc}
	c.state = c.readBack()
	return c
}

// State returns the current focus and mode.
func (c *Controller) State() model.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending reports the URL target not yet applied, if any.
func (c *Controller) Pending() (model.ViewState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return model.ViewState{}, false
	}
	return *c.pending, true
}

// ParseTarget resolves URL date/view parameters against the current state.
// Either may be empty; an empty value keeps the current one.
func (c *Controller) ParseTarget(date, view string) (model.ViewState, error) {
	c.mu.Lock()
	target := c.state
	c.mu.Unlock()

	if date = strings.TrimSpace(date); date != "" {
		d, err := time.ParseInLocation(model.DateLayout, date, c.loc)
		if err != nil {
			return model.ViewState{}, fmt.Errorf("navigation: bad date %q: %w", date, err)
		}
		target.FocusDate = d
	}
	if view = strings.TrimSpace(view); view != "" {
		m, ok := model.ParseViewMode(view)
		if !ok {
			return model.ViewState{}, fmt.Errorf("navigation: bad view %q", view)
		}
		target.Mode = m
	}
	return target, nil
}

// ApplyURL navigates to the URL's date/view. If the surface cannot be
// driven yet the target stays pending and is retried when events first
// load and whenever the surface reports it has settled.
func (c *Controller) ApplyURL(date, view string) (model.ViewState, error) {
	if strings.TrimSpace(date) == "" && strings.TrimSpace(view) == "" {
		return c.State(), nil
	}
	target, err := c.ParseTarget(date, view)
	if err != nil {
		return model.ViewState{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = &target
	if c.events > 0 {
		c.tryPending()
	}
	return c.state, nil
}

// EventsChanged reports the size of the event collection after a fetch.
// A transition from empty to non-empty retries a pending URL target.
func (c *Controller) EventsChanged(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasEmpty := c.events == 0
	c.events = n
	if wasEmpty && n > 0 {
		c.tryPending()
	}
}

// RenderSettled is the surface's completion signal; a pending target is
// retried once per signal.
func (c *Controller) RenderSettled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tryPending()
}

// MonthCellClick drills down from month view into the clicked week.
func (c *Controller) MonthCellClick(date time.Time) (model.ViewState, error) {
	return c.Navigate(model.ViewState{FocusDate: date, Mode: model.ViewWeek})
}

// HeaderClick drills down from a week-view column header into that day.
func (c *Controller) HeaderClick(date time.Time) (model.ViewState, error) {
	return c.Navigate(model.ViewState{FocusDate: date, Mode: model.ViewDay})
}

// Navigate drives the surface to target. Navigating to the current state
// is a no-op.
func (c *Controller) Navigate(target model.ViewState) (model.ViewState, error) {
	target = c.normalize(target)

	c.mu.Lock()
	defer c.mu.Unlock()
	// An explicit navigation supersedes any URL target still waiting.
	c.pending = nil
	if c.same(target) {
		return c.state, nil
	}
	if err := c.surface.GoTo(target.FocusDate, target.Mode); err != nil {
		return c.state, fmt.Errorf("navigation: go to %s %s: %w", target.Mode, target.FocusDate.Format(model.DateLayout), err)
	}
	c.state = c.readBack()
	appLog.Debug("navigated", "mode", c.state.Mode, "date", c.state.FocusDate.Format(model.DateLayout))
	return c.state, nil
}

func (c *Controller) Prev() model.ViewState  { return c.page(c.surface.Prev) }
func (c *Controller) Next() model.ViewState  { return c.page(c.surface.Next) }
func (c *Controller) Today() model.ViewState { return c.page(c.surface.Today) }

func (c *Controller) page(step func()) model.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	step()
	c.state = c.readBack()
	return c.state
}

// tryPending must be called with c.mu held.
func (c *Controller) tryPending() {
	if c.pending == nil {
		return
	}
	target := c.normalize(*c.pending)
	if c.same(target) {
		c.pending = nil
		return
	}
	if err := c.surface.GoTo(target.FocusDate, target.Mode); err != nil {
		appLog.Debug("url navigation deferred", "mode", target.Mode, "date", target.FocusDate.Format(model.DateLayout), "reason", err.Error())
		return
	}
	c.pending = nil
	c.state = c.readBack()
	appLog.Info("applied url view", "mode", c.state.Mode, "date", c.state.FocusDate.Format(model.DateLayout))
}

func (c *Controller) readBack() model.ViewState {
	focus, mode := c.surface.Focus()
	return c.normalize(model.ViewState{FocusDate: focus, Mode: mode})
}

func (c *Controller) normalize(v model.ViewState) model.ViewState {
	if !v.FocusDate.IsZero() {
		v.FocusDate, _ = model.DayBounds(v.FocusDate, c.loc)
	}
	return v
}

func (c *Controller) same(v model.ViewState) bool {
	return v.Mode == c.state.Mode && v.FocusDate.Equal(c.state.FocusDate)
}
