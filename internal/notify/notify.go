package notify

import (
	"sync"
	"time"

	appLog "apptcal/internal/log"
)

// Notifier delivers user-visible outcomes (toasts).
type Notifier interface {
	Success(msg string)
	Failure(msg string, err error)
}

// Level is the toast severity.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one delivered toast.
type Notification struct {
	Seq     uint64    `json:"seq"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

const DefaultCapacity = 50

// Feed keeps the most recent notifications for front-ends to poll.
type Feed struct {
	mu    sync.Mutex
	limit int
	seq   uint64
	items []Notification
	now   func() time.Time
}

// NewFeed returns a feed holding at most capacity entries. A non-positive
// capacity selects DefaultCapacity.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{limit: capacity, now: time.Now}
}

func (f *Feed) Success(msg string) {
	appLog.Info("notify success", "message", msg)
	f.push(LevelSuccess, msg, "")
}

func (f *Feed) Failure(msg string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	appLog.Error("notify failure", err, "message", msg)
	f.push(LevelError, msg, detail)
}

func (f *Feed) push(level Level, msg, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.items = append(f.items, Notification{
		Seq:     f.seq,
		Level:   level,
		Message: msg,
		Detail:  detail,
		At:      f.now(),
	})
	if over := len(f.items) - f.limit; over > 0 {
		f.items = append(f.items[:0], f.items[over:]...)
	}
}

// Since returns notifications with Seq > seq, oldest first.
func (f *Feed) Since(seq uint64) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, 0)
	for _, n := range f.items {
		if n.Seq > seq {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the sequence number of the newest notification.
func (f *Feed) Last() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}
