package navigation

import (
	"errors"
	"sync"
	"time"

	"apptcal/internal/model"
)

// ErrNotReady is returned by a surface that cannot be driven yet.
var ErrNotReady = errors.New("navigation: render surface not ready")

// Surface is the render surface's navigation API.
type Surface interface {
	GoTo(date time.Time, mode model.ViewMode) error
	Prev()
	Next()
	Today()
	// Focus reads back the surface's current focus date and mode.
	Focus() (time.Time, model.ViewMode)
}

// Pager is an in-process render surface. It tracks the focus the front-end
// is showing and pages by the granularity of the current mode: one day,
// seven days or one calendar month.
type Pager struct {
	mu    sync.Mutex
	loc   *time.Location
	now   func() time.Time
	focus time.Time
	mode  model.ViewMode
	ready bool
}

// NewPager returns a pager focused on today in week view. It refuses GoTo
// until MarkReady is called.
func NewPager(loc *time.Location, now func() time.Time) *Pager {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	p := &Pager{loc: loc, now: now, mode: model.ViewWeek}
	p.focus = p.day(now())
	return p
}

// MarkReady records that the surface finished its initial render.
func (p *Pager) MarkReady() {
	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
}

func (p *Pager) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *Pager) GoTo(date time.Time, mode model.ViewMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return ErrNotReady
	}
	p.focus = p.day(date)
	if mode != "" {
		p.mode = mode
	}
	return nil
}

func (p *Pager) Prev() { p.page(-1) }
func (p *Pager) Next() { p.page(1) }

func (p *Pager) Today() {
	p.mu.Lock()
	p.focus = p.day(p.now())
	p.mu.Unlock()
}

func (p *Pager) Focus() (time.Time, model.ViewMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.focus, p.mode
}

func (p *Pager) page(dir int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.mode {
	case model.ViewDay:
		p.focus = p.focus.AddDate(0, 0, dir)
	case model.ViewMonth:
		// Page from the first of the month so Jan 31 + 1 lands in February.
		first := time.Date(p.focus.Year(), p.focus.Month(), 1, 0, 0, 0, 0, p.loc)
		p.focus = first.AddDate(0, dir, 0)
	default:
		p.focus = p.focus.AddDate(0, 0, 7*dir)
	}
}

func (p *Pager) day(t time.Time) time.Time {
	start, _ := model.DayBounds(t, p.loc)
	return start
}
