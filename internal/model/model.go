package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ID is an opaque server-assigned identity. The appointment API emits ids
// as JSON numbers in some payloads and strings in others; ID accepts both
// and always marshals as a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("model: id must be a string or number")
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Status is the appointment lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCheckedIn Status = "checked_in"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

var validStatuses = map[Status]bool{
	StatusScheduled: true,
	StatusCheckedIn: true,
	StatusCompleted: true,
	StatusCancelled: true,
	StatusNoShow:    true,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return validStatuses[s] }

// Appointment is one concrete calendar instance as rendered.
//
// PatientID is empty iff the instance is a non-patient event (closure,
// staff meeting); for those Notes doubles as the title.
type Appointment struct {
	ID       ID
	Title    string
	Start    time.Time
	End      time.Time
	AllDay   bool
	ClinicID ID
	Status   Status
	Notes    string

	ClinicianID       ID
	PatientID         ID
	AppointmentTypeID ID
	ParentID          ID
	RecurrenceGroupID string

	// Display-only fields from the calendar_data aggregate.
	ClinicName    string
	PatientName   string
	ClinicianName string
	SMSConfirmed  bool
}

// Duration returns End - Start.
func (a Appointment) Duration() time.Duration { return a.End.Sub(a.Start) }

// Validate checks the instance invariant End > Start.
func (a Appointment) Validate() error {
	if a.Start.IsZero() || a.End.IsZero() {
		return errors.New("model: start and end are required")
	}
	if !a.End.After(a.Start) {
		return errors.New("model: end must be after start")
	}
	return nil
}

// IsPatientEvent reports whether the instance belongs to a patient.
func (a Appointment) IsPatientEvent() bool { return a.PatientID != "" }

// DayBounds returns the 00:00 and 23:59 boundaries of t's calendar day in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = t.Location()
	}
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	end := time.Date(lt.Year(), lt.Month(), lt.Day(), 23, 59, 0, 0, loc)
	return start, end
}

// NormalizeAllDay pins an all-day instance to its day boundaries. Multi-day
// instances keep the end on its own day.
func (a *Appointment) NormalizeAllDay(loc *time.Location) {
	if !a.AllDay {
		return
	}
	start, _ := DayBounds(a.Start, loc)
	end := a.End
	if end.IsZero() || !end.After(a.Start) {
		end = a.Start
	}
	// An exclusive midnight end belongs to the previous day.
	if le := end.In(start.Location()); le.Hour() == 0 && le.Minute() == 0 && le.Second() == 0 && end.After(start) {
		end = end.Add(-time.Minute)
	}
	_, dayEnd := DayBounds(end, loc)
	a.Start = start
	a.End = dayEnd
}

// Clinic is a directory entry used for filtering and coloring.
type Clinic struct {
	ID     ID
	Title  string
	Color  string
	Enable bool
}

// Pattern is the recurrence step.
type Pattern string

const (
	PatternDaily    Pattern = "daily"
	PatternWeekly   Pattern = "weekly"
	PatternBiweekly Pattern = "biweekly"
	PatternMonthly  Pattern = "monthly"
)

// ParsePattern accepts the API spelling, case-insensitive.
func ParsePattern(s string) (Pattern, error) {
	switch p := Pattern(strings.ToLower(strings.TrimSpace(s))); p {
	case PatternDaily, PatternWeekly, PatternBiweekly, PatternMonthly:
		return p, nil
	}
	return "", errors.New("model: unknown recurrence pattern " + s)
}

// TerminatorKind selects how a series ends.
type TerminatorKind string

const (
	TerminateAfterCount TerminatorKind = "occurrences"
	TerminateOnDate     TerminatorKind = "endDate"
)

// Terminator is a tagged union: Count is meaningful for
// TerminateAfterCount, Date for TerminateOnDate.
type Terminator struct {
	Kind  TerminatorKind
	Count int
	Date  time.Time
}

// RecurrenceRule is attached to the first instance of a series at creation.
type RecurrenceRule struct {
	Pattern    Pattern
	Terminator Terminator
}

// AfterCount builds a count-terminated rule.
func AfterCount(p Pattern, n int) RecurrenceRule {
	return RecurrenceRule{Pattern: p, Terminator: Terminator{Kind: TerminateAfterCount, Count: n}}
}

// Until builds a date-terminated rule.
func Until(p Pattern, date time.Time) RecurrenceRule {
	return RecurrenceRule{Pattern: p, Terminator: Terminator{Kind: TerminateOnDate, Date: date}}
}

// ViewMode is the calendar grid granularity.
type ViewMode string

const (
	ViewDay   ViewMode = "day"
	ViewWeek  ViewMode = "week"
	ViewMonth ViewMode = "month"
)

// ParseViewMode accepts day|week|month and the render library's
// timeGridDay/timeGridWeek/dayGridMonth aliases.
func ParseViewMode(s string) (ViewMode, bool) {
	switch strings.TrimSpace(s) {
	case "day", "timeGridDay":
		return ViewDay, true
	case "week", "timeGridWeek":
		return ViewWeek, true
	case "month", "dayGridMonth":
		return ViewMonth, true
	}
	return "", false
}

// ViewState is the calendar's focus and granularity.
type ViewState struct {
	FocusDate time.Time
	Mode      ViewMode
}

// DateLayout is the ISO date used in URLs and slot keys.
const DateLayout = "2006-01-02"
