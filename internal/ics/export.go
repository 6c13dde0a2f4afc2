package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "apptcal/internal/log"
	"apptcal/internal/model"
	"apptcal/internal/store"
)

const (
	productID = "-//apptcal//calendar export//EN"
	uidDomain = "apptcal"

	propClinicID = ical.ComponentProperty("X-CLINIC-ID")
	propGroupID  = ical.ComponentProperty("X-RECURRENCE-GROUP")
)

// ExportOptions controls calendar-level properties.
type ExportOptions struct {
	Name     string
	Location *time.Location
	// Now stamps DTSTAMP; defaults to time.Now.
	Now func() time.Time
}

// Export renders the visible calendar as an iCalendar document, one VEVENT
// per instance. All-day instances are written as DATE values with an
// exclusive DTEND on the following day.
func Export(events []store.VisibleEvent, opts ExportOptions) string {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	stamp := now()

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	for _, ev := range events {
		addEvent(cal, ev, loc, stamp)
	}

	appLog.Debug("ics export", "events", len(events))
	return cal.Serialize()
}

func addEvent(cal *ical.Calendar, ev store.VisibleEvent, loc *time.Location, stamp time.Time) {
	ve := cal.AddEvent(UID(ev.ID))
	ve.SetDtStampTime(stamp)

	if ev.AllDay {
		startDay, _ := model.DayBounds(ev.Start, loc)
		endDay, _ := model.DayBounds(ev.End, loc)
		ve.SetAllDayStartAt(startDay)
		ve.SetAllDayEndAt(endDay.AddDate(0, 0, 1))
	} else {
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
	}

	ve.SetSummary(summary(ev))
	if desc := description(ev); desc != "" {
		ve.SetDescription(desc)
	}
	if ev.ClinicTitle != "" {
		ve.SetLocation(ev.ClinicTitle)
		ve.SetProperty(ical.ComponentPropertyCategories, ev.ClinicTitle)
	}
	ve.SetProperty(propClinicID, ev.ClinicID.String())
	if ev.RecurrenceGroupID != "" {
		ve.SetProperty(propGroupID, ev.RecurrenceGroupID)
	}
	if ev.Color != "" {
		ve.SetProperty(ical.ComponentPropertyColor, ev.Color)
	}
	ve.SetProperty(ical.ComponentPropertyStatus, status(ev.Status))
}

// UID is the stable iCalendar identity of an appointment.
func UID(id model.ID) string {
	return "appointment-" + id.String() + "@" + uidDomain
}

func summary(ev store.VisibleEvent) string {
	if ev.Title != "" {
		return ev.Title
	}
	if ev.PatientName != "" {
		return ev.PatientName
	}
	return ev.Notes
}

func description(ev store.VisibleEvent) string {
	var parts []string
	if ev.PatientName != "" {
		parts = append(parts, "Patient: "+ev.PatientName)
	}
	if ev.ClinicianName != "" {
		parts = append(parts, "Clinician: "+ev.ClinicianName)
	}
	if ev.Status != "" {
		parts = append(parts, "Status: "+string(ev.Status))
	}
	if ev.IsPatientEvent() && ev.Notes != "" {
		parts = append(parts, ev.Notes)
	}
	return strings.Join(parts, "\n")
}

func status(s model.Status) string {
	if s == model.StatusCancelled {
		return "CANCELLED"
	}
	return "CONFIRMED"
}
