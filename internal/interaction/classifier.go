// Package interaction turns raw pointer input from the render surface into
// calendar intents. Double clicks on empty grid cells are reconstructed
// from pointer-down timing because the render library routes clicks on
// events and on empty space differently and has no grid double-click.
package interaction

import (
	"sync"
	"time"

	"apptcal/internal/model"
)

// DefaultDoubleClickWindow is the maximum gap between two pointer-downs on
// the same slot for them to count as a double click.
const DefaultDoubleClickWindow = 300 * time.Millisecond

// Kind is the type of raw input built at the render-surface boundary.
type Kind string

const (
	KindClick       Kind = "click"
	KindHeaderClick Kind = "header_click"
	KindEventClick  Kind = "event_click"
	KindDragStart   Kind = "drag_start"
	KindDrop        Kind = "drop"
	KindResizeStart Kind = "resize_start"
	KindResizeEnd   Kind = "resize_end"
)

// Slot identifies a grid cell.
type Slot struct {
	Date   time.Time
	AllDay bool
}

// Key is the click-memory context key: the slot's exact date string.
func (s Slot) Key() string {
	if s.AllDay {
		return s.Date.Format(model.DateLayout)
	}
	return s.Date.Format(time.RFC3339)
}

// Pointer is one typed input event.
type Pointer struct {
	Kind Kind
	View model.ViewMode
	// At is when the input happened; the classifier never reads a clock.
	At   time.Time
	Slot Slot

	// Set for event clicks, drags and resizes.
	EventID     model.ID
	EventAllDay bool

	// Set for drops and resize ends.
	NewStart time.Time
	NewEnd   time.Time
}

// IntentKind is what the shell should do in response to input.
type IntentKind string

const (
	IntentNone         IntentKind = "none"
	IntentCreateTimed  IntentKind = "create_timed"
	IntentCreateAllDay IntentKind = "create_all_day"
	IntentEdit         IntentKind = "edit"
	IntentNavigate     IntentKind = "navigate"
	IntentDragStart    IntentKind = "drag_start"
	IntentDrop         IntentKind = "drop"
	IntentResizeStart  IntentKind = "resize_start"
	IntentResizeEnd    IntentKind = "resize_end"
)

// Intent is the classified result.
type Intent struct {
	Kind IntentKind

	// Create and navigate target.
	Date time.Time
	// Navigate target view.
	View model.ViewMode

	// Edit, drop and resize subject.
	EventID model.ID
	AllDay  bool

	NewStart time.Time
	NewEnd   time.Time
}

// ClickMemory is the pending first click. The zero value is Idle.
type ClickMemory struct {
	Pending bool
	Key     string
	At      time.Time
}

// Step classifies p given the prior memory and returns the intent and the
// memory to carry into the next call.
func Step(mem ClickMemory, p Pointer, window time.Duration) (Intent, ClickMemory) {
	if window <= 0 {
		window = DefaultDoubleClickWindow
	}

	switch p.Kind {
	case KindEventClick:
		// An event under the pointer is unambiguous; timing is irrelevant.
		return Intent{Kind: IntentEdit, EventID: p.EventID, AllDay: p.EventAllDay}, mem

	case KindHeaderClick:
		if p.View == model.ViewWeek {
			return Intent{Kind: IntentNavigate, View: model.ViewDay, Date: p.Slot.Date}, ClickMemory{}
		}
		return Intent{Kind: IntentNone}, mem

	case KindDragStart:
		return Intent{Kind: IntentDragStart, EventID: p.EventID, AllDay: p.EventAllDay}, ClickMemory{}
	case KindDrop:
		return Intent{Kind: IntentDrop, EventID: p.EventID, AllDay: p.EventAllDay, NewStart: p.NewStart, NewEnd: p.NewEnd}, ClickMemory{}
	case KindResizeStart:
		return Intent{Kind: IntentResizeStart, EventID: p.EventID, AllDay: p.EventAllDay}, ClickMemory{}
	case KindResizeEnd:
		return Intent{Kind: IntentResizeEnd, EventID: p.EventID, AllDay: p.EventAllDay, NewStart: p.NewStart, NewEnd: p.NewEnd}, ClickMemory{}

	case KindClick:
		if p.View == model.ViewMonth {
			// Month view drills down instead of creating.
			return Intent{Kind: IntentNavigate, View: model.ViewWeek, Date: p.Slot.Date}, ClickMemory{}
		}

		key := p.Slot.Key()
		elapsed := p.At.Sub(mem.At)
		if mem.Pending && mem.Key == key && elapsed >= 0 && elapsed < window {
			kind := IntentCreateTimed
			if p.Slot.AllDay {
				kind = IntentCreateAllDay
			}
			return Intent{Kind: kind, Date: p.Slot.Date, AllDay: p.Slot.AllDay}, ClickMemory{}
		}
		// First click: remember it, do nothing.
		return Intent{Kind: IntentNone}, ClickMemory{Pending: true, Key: key, At: p.At}
	}

	return Intent{Kind: IntentNone}, mem
}

// Classifier owns one ClickMemory for a calendar session.
type Classifier struct {
	window time.Duration

	mu  sync.Mutex
	mem ClickMemory
}

// NewClassifier returns an idle classifier. A non-positive window selects
// DefaultDoubleClickWindow.
func NewClassifier(window time.Duration) *Classifier {
	if window <= 0 {
		window = DefaultDoubleClickWindow
	}
	return &Classifier{window: window}
}

// Classify runs one Step against the owned memory.
func (c *Classifier) Classify(p Pointer) Intent {
	c.mu.Lock()
	defer c.mu.Unlock()
	intent, next := Step(c.mem, p, c.window)
	c.mem = next
	return intent
}

// Memory returns a snapshot of the current click memory.
func (c *Classifier) Memory() ClickMemory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mem
}

// Reset drops any pending first click.
func (c *Classifier) Reset() {
	c.mu.Lock()
	c.mem = ClickMemory{}
	c.mu.Unlock()
}
