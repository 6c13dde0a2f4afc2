package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	appLog "apptcal/internal/log"
	"apptcal/internal/model"
)

const (
	DefaultMaxOccurrences = 52
	DefaultSafetyCap      = 365
)

var (
	// ErrOverflow is returned when a rule yields more instances than the
	// safety cap allows.
	ErrOverflow = errors.New("recurrence: series exceeds safety cap")
	// ErrInvalidRule covers unknown patterns, missing terminators and
	// out-of-range counts.
	ErrInvalidRule = errors.New("recurrence: invalid rule")
)

// Config controls how a series is expanded.
type Config struct {
	// Location is the zone whose wall clock drives stepping and end-of-day
	// cut-offs. If nil, the first instance's location is used.
	Location *time.Location

	// MaxOccurrences bounds count-terminated rules. If zero,
	// DefaultMaxOccurrences is used.
	MaxOccurrences int

	// SafetyCap bounds every expansion. If zero, DefaultSafetyCap is used.
	SafetyCap int
}

func (c Config) normalized(first time.Time) Config {
	if c.Location == nil {
		c.Location = first.Location()
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = DefaultMaxOccurrences
	}
	if c.SafetyCap <= 0 {
		c.SafetyCap = DefaultSafetyCap
	}
	return c
}

// Span is one generated start/end pair.
type Span struct {
	Start time.Time
	End   time.Time
}

// Validate checks the rule without expanding it.
func Validate(rule model.RecurrenceRule, cfg Config) error {
	cfg = cfg.normalized(time.Now())
	switch rule.Pattern {
	case model.PatternDaily, model.PatternWeekly, model.PatternBiweekly, model.PatternMonthly:
	default:
		return fmt.Errorf("%w: unknown pattern %q", ErrInvalidRule, rule.Pattern)
	}
	switch rule.Terminator.Kind {
	case model.TerminateAfterCount:
		if rule.Terminator.Count < 1 || rule.Terminator.Count > cfg.MaxOccurrences {
			return fmt.Errorf("%w: occurrences must be between 1 and %d", ErrInvalidRule, cfg.MaxOccurrences)
		}
		if rule.Terminator.Count > cfg.SafetyCap {
			return fmt.Errorf("%w: %d occurrences, cap %d", ErrOverflow, rule.Terminator.Count, cfg.SafetyCap)
		}
	case model.TerminateOnDate:
		if rule.Terminator.Date.IsZero() {
			return fmt.Errorf("%w: end date is required", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: terminator kind %q", ErrInvalidRule, rule.Terminator.Kind)
	}
	return nil
}

// Times returns the start/end of every instance in the series, the first
// instance included. The duration of first is preserved for every instance;
// monthly steps keep the day-of-month and clamp to the last day of shorter
// months.
func Times(first Span, rule model.RecurrenceRule, cfg Config) ([]Span, error) {
	if !first.End.After(first.Start) {
		return nil, fmt.Errorf("%w: first instance must end after it starts", ErrInvalidRule)
	}
	if err := Validate(rule, cfg); err != nil {
		return nil, err
	}
	cfg = cfg.normalized(first.Start)

	start := first.Start.In(cfg.Location)
	dur := first.End.Sub(first.Start)

	r, err := buildRule(start, rule, cfg)
	if err != nil {
		return nil, err
	}

	limit := cfg.SafetyCap + 1
	if rule.Terminator.Kind == model.TerminateAfterCount {
		limit = rule.Terminator.Count
	}

	out := make([]Span, 0, min(limit, 64))
	out = append(out, Span{Start: start, End: start.Add(dur)})

	next := r.Iterator()
	for len(out) < limit {
		t, ok := next()
		if !ok {
			break
		}
		// The iterator yields DTSTART itself; it is already in out.
		if !t.After(start) {
			continue
		}
		out = append(out, Span{Start: t, End: t.Add(dur)})
	}

	if len(out) > cfg.SafetyCap {
		appLog.Error("recurrence: safety cap reached", ErrOverflow,
			"pattern", rule.Pattern,
			"cap", cfg.SafetyCap,
		)
		return nil, fmt.Errorf("%w: more than %d instances", ErrOverflow, cfg.SafetyCap)
	}
	return out, nil
}

// Expand produces the concrete instances of a series whose first instance
// is first. All instances share the group id, duration, clinic, clinician,
// appointment type, patient and notes of first; only Start/End vary. If
// first carries no group id a new one is minted. Ids are left empty for
// the server to assign.
func Expand(first model.Appointment, rule model.RecurrenceRule, cfg Config) ([]model.Appointment, error) {
	if first.AllDay {
		first.NormalizeAllDay(cfg.Location)
	}
	spans, err := Times(Span{Start: first.Start, End: first.End}, rule, cfg)
	if err != nil {
		return nil, err
	}

	spanDays := 0
	if first.AllDay {
		spanDays = calendarDays(first.Start, first.End, spans[0].Start.Location())
	}

	group := first.RecurrenceGroupID
	if group == "" {
		group = uuid.NewString()
	}

	out := make([]model.Appointment, 0, len(spans))
	for _, s := range spans {
		inst := first
		inst.ID = ""
		inst.RecurrenceGroupID = group
		inst.Start = s.Start
		inst.End = s.End
		if inst.AllDay {
			// All-day ends are counted in calendar days; elapsed time drifts
			// across DST transitions.
			loc := s.Start.Location()
			inst.Start, _ = model.DayBounds(s.Start, loc)
			_, inst.End = model.DayBounds(s.Start.AddDate(0, 0, spanDays), loc)
		}
		out = append(out, inst)
	}

	appLog.Debug("recurrence expanded",
		"pattern", rule.Pattern,
		"terminator", rule.Terminator.Kind,
		"instances", len(out),
		"group", group,
	)
	return out, nil
}

func buildRule(start time.Time, rule model.RecurrenceRule, cfg Config) (*rrule.RRule, error) {
	opt := rrule.ROption{
		Dtstart:  start,
		Interval: 1,
	}

	switch rule.Pattern {
	case model.PatternDaily:
		opt.Freq = rrule.DAILY
	case model.PatternWeekly:
		opt.Freq = rrule.WEEKLY
	case model.PatternBiweekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
	case model.PatternMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday, opt.Bysetpos = monthDaySelector(start.Day())
	}

	if rule.Terminator.Kind == model.TerminateOnDate {
		d := rule.Terminator.Date.In(cfg.Location)
		opt.Until = time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, cfg.Location)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return r, nil
}

// monthDaySelector keeps day-of-month for days 1..28. For 29..31 it selects
// the last of {28..day} present in each month, i.e. day clamped to the
// month length.
func monthDaySelector(day int) (bymonthday []int, bysetpos []int) {
	if day <= 28 {
		return []int{day}, nil
	}
	for d := 28; d <= day; d++ {
		bymonthday = append(bymonthday, d)
	}
	return bymonthday, []int{-1}
}

// calendarDays is the number of day boundaries between start and end in loc.
func calendarDays(start, end time.Time, loc *time.Location) int {
	s, e := start.In(loc), end.In(loc)
	sd := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	ed := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	return int(ed.Sub(sd).Hours() / 24)
}
