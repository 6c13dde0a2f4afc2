package api

import (
	"errors"
	"strings"
	"time"

	appLog "apptcal/internal/log"
	"apptcal/internal/model"
)

// CalendarData is the calendar_data aggregate: clinic resources plus every
// event the calendar may render.
type CalendarData struct {
	Resources []Resource `json:"resources"`
	Events    []Event    `json:"events"`
}

// Resource is a clinic as listed by the aggregate.
type Resource struct {
	ID    model.ID `json:"id"`
	Title string   `json:"title"`
	Color string   `json:"color"`
}

// Event is one aggregate event in the render library's shape.
type Event struct {
	ID            model.ID      `json:"id"`
	Title         string        `json:"title"`
	Start         string        `json:"start"`
	End           string        `json:"end"`
	AllDay        bool          `json:"allDay"`
	ExtendedProps ExtendedProps `json:"extendedProps"`
}

// ExtendedProps carries the clinic association and display fields.
type ExtendedProps struct {
	ClinicID      model.ID     `json:"clinicId"`
	ClinicName    string       `json:"clinicName"`
	PatientName   string       `json:"patientName"`
	ClinicianName string       `json:"clinicianName"`
	Status        model.Status `json:"status"`
	SMSConfirmed  bool         `json:"smsConfirmed"`

	// Optional in the aggregate; present on newer backends.
	PatientID         model.ID `json:"patientId,omitempty"`
	ClinicianID       model.ID `json:"clinicianId,omitempty"`
	AppointmentTypeID model.ID `json:"appointmentTypeId,omitempty"`
	RecurrenceGroupID string   `json:"recurrenceGroupId,omitempty"`
	Notes             string   `json:"notes,omitempty"`
}

// Clinics converts resources into directory entries.
func (d CalendarData) Clinics() []model.Clinic {
	out := make([]model.Clinic, 0, len(d.Resources))
	for _, r := range d.Resources {
		out = append(out, model.Clinic{ID: r.ID, Title: r.Title, Color: r.Color})
	}
	return out
}

// Appointments converts events into instances. Times without a zone are
// read in loc. Events with unparseable or inverted times are dropped and
// logged; all-day events are pinned to their day boundaries.
func (d CalendarData) Appointments(loc *time.Location) []model.Appointment {
	if loc == nil {
		loc = time.Local
	}
	out := make([]model.Appointment, 0, len(d.Events))
	for _, ev := range d.Events {
		a, err := ev.toAppointment(loc)
		if err != nil {
			appLog.Warn("api: dropping malformed calendar event", "id", ev.ID, "reason", err.Error())
			continue
		}
		out = append(out, a)
	}
	return out
}

func (ev Event) toAppointment(loc *time.Location) (model.Appointment, error) {
	if ev.ID == "" {
		return model.Appointment{}, errors.New("missing id")
	}
	start, dateOnly, err := parseTime(ev.Start, loc)
	if err != nil {
		return model.Appointment{}, err
	}
	var end time.Time
	if ev.End != "" {
		end, _, err = parseTime(ev.End, loc)
		if err != nil {
			return model.Appointment{}, err
		}
	}

	p := ev.ExtendedProps
	a := model.Appointment{
		ID:                ev.ID,
		Title:             ev.Title,
		Start:             start,
		End:               end,
		AllDay:            ev.AllDay || dateOnly,
		ClinicID:          p.ClinicID,
		Status:            p.Status,
		Notes:             p.Notes,
		ClinicianID:       p.ClinicianID,
		PatientID:         p.PatientID,
		AppointmentTypeID: p.AppointmentTypeID,
		RecurrenceGroupID: p.RecurrenceGroupID,
		ClinicName:        p.ClinicName,
		PatientName:       p.PatientName,
		ClinicianName:     p.ClinicianName,
		SMSConfirmed:      p.SMSConfirmed,
	}
	if a.Status == "" {
		a.Status = model.StatusScheduled
	}
	if a.Notes == "" && a.PatientName == "" {
		// Non-patient events use the title as their notes.
		a.Notes = a.Title
	}
	if a.AllDay {
		a.NormalizeAllDay(loc)
	}
	if err := a.Validate(); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

var layouts = []struct {
	layout   string
	dateOnly bool
	zoned    bool
}{
	{time.RFC3339Nano, false, true},
	{"2006-01-02T15:04:05", false, false},
	{"2006-01-02T15:04", false, false},
	{model.DateLayout, true, false},
}

// parseTime accepts RFC3339, zone-less local date-times and bare dates.
func parseTime(s string, loc *time.Location) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, errors.New("empty time value")
	}
	for _, l := range layouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, loc)
		}
		if err == nil {
			return t.In(loc), l.dateOnly, nil
		}
	}
	return time.Time{}, false, errors.New("unrecognized time " + s)
}

// CreateRequest is the POST /appointments/ body.
type CreateRequest struct {
	Patient           model.ID     `json:"patient,omitempty"`
	Clinician         model.ID     `json:"clinician,omitempty"`
	Clinic            model.ID     `json:"clinic"`
	AppointmentType   model.ID     `json:"appointment_type,omitempty"`
	StartTime         time.Time    `json:"start_time"`
	EndTime           time.Time    `json:"end_time"`
	Status            model.Status `json:"status"`
	Notes             string       `json:"notes"`
	ParentAppointment model.ID     `json:"parent_appointment,omitempty"`
	IsAllDay          bool         `json:"is_all_day,omitempty"`

	IsRecurring         bool   `json:"is_recurring"`
	RecurrencePattern   string `json:"recurrence_pattern,omitempty"`
	NumberOfOccurrences int    `json:"number_of_occurrences,omitempty"`
	RecurrenceEndDate   string `json:"recurrence_end_date,omitempty"`
	RecurrenceGroup     string `json:"recurrence_group,omitempty"`
}

// NewCreateRequest builds a POST body for one instance.
func NewCreateRequest(a model.Appointment) CreateRequest {
	status := a.Status
	if status == "" {
		status = model.StatusScheduled
	}
	return CreateRequest{
		Patient:           a.PatientID,
		Clinician:         a.ClinicianID,
		Clinic:            a.ClinicID,
		AppointmentType:   a.AppointmentTypeID,
		StartTime:         a.Start,
		EndTime:           a.End,
		Status:            status,
		Notes:             a.Notes,
		ParentAppointment: a.ParentID,
		IsAllDay:          a.AllDay,
		RecurrenceGroup:   a.RecurrenceGroupID,
	}
}

// WithRule marks the request as the head of a server-expanded series.
func (r CreateRequest) WithRule(rule model.RecurrenceRule) CreateRequest {
	r.IsRecurring = true
	r.RecurrencePattern = string(rule.Pattern)
	switch rule.Terminator.Kind {
	case model.TerminateAfterCount:
		r.NumberOfOccurrences = rule.Terminator.Count
	case model.TerminateOnDate:
		r.RecurrenceEndDate = rule.Terminator.Date.Format(model.DateLayout)
	}
	return r
}

// Created is the subset of the POST response the calendar needs.
type Created struct {
	ID model.ID `json:"id"`
}

// DetailsPatch is the dialog-driven PATCH body.
type DetailsPatch struct {
	Status          *model.Status `json:"status,omitempty"`
	AppointmentType *model.ID     `json:"appointment_type,omitempty"`
	Notes           *string       `json:"notes,omitempty"`
}

type timesPatch struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type tokenResponse struct {
	CSRFToken string `json:"csrfToken"`
	Token     string `json:"token"`
}
