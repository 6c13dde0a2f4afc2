package web

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"apptcal/internal/interaction"
	"apptcal/internal/model"
	"apptcal/internal/notify"
	"apptcal/internal/series"
	"apptcal/internal/shell"
	"apptcal/internal/store"
)

// eventDTO is an event in the render library's input shape.
type eventDTO struct {
	ID            model.ID         `json:"id"`
	Title         string           `json:"title"`
	Start         time.Time        `json:"start"`
	End           time.Time        `json:"end"`
	AllDay        bool             `json:"allDay"`
	Color         string           `json:"color,omitempty"`
	ResourceID    model.ID         `json:"resourceId"`
	ExtendedProps extendedPropsDTO `json:"extendedProps"`
}

type extendedPropsDTO struct {
	ClinicID          model.ID     `json:"clinicId"`
	ClinicName        string       `json:"clinicName"`
	PatientName       string       `json:"patientName,omitempty"`
	ClinicianName     string       `json:"clinicianName,omitempty"`
	Status            model.Status `json:"status"`
	SMSConfirmed      bool         `json:"smsConfirmed"`
	Notes             string       `json:"notes,omitempty"`
	RecurrenceGroupID string       `json:"recurrenceGroupId,omitempty"`
}

func toEventDTO(ev store.VisibleEvent) eventDTO {
	title := ev.Title
	if title == "" && !ev.IsPatientEvent() {
		title = ev.Notes
	}
	return eventDTO{
		ID:         ev.ID,
		Title:      title,
		Start:      ev.Start,
		End:        ev.End,
		AllDay:     ev.AllDay,
		Color:      ev.Color,
		ResourceID: ev.ClinicID,
		ExtendedProps: extendedPropsDTO{
			ClinicID:          ev.ClinicID,
			ClinicName:        ev.ClinicTitle,
			PatientName:       ev.PatientName,
			ClinicianName:     ev.ClinicianName,
			Status:            ev.Status,
			SMSConfirmed:      ev.SMSConfirmed,
			Notes:             ev.Notes,
			RecurrenceGroupID: ev.RecurrenceGroupID,
		},
	}
}

type eventsResponse struct {
	Events []eventDTO `json:"events"`
	View   viewDTO    `json:"view"`
	Error  string     `json:"error,omitempty"`
}

type clinicDTO struct {
	ID      model.ID `json:"id"`
	Title   string   `json:"title"`
	Color   string   `json:"color"`
	Enabled bool     `json:"enabled"`
}

type clinicToggleRequest struct {
	Enabled bool `json:"enabled"`
}

type viewDTO struct {
	Date string         `json:"date"`
	View model.ViewMode `json:"view"`
}

func toViewDTO(v model.ViewState) viewDTO {
	return viewDTO{Date: v.FocusDate.Format(model.DateLayout), View: v.Mode}
}

type viewRequest struct {
	Date string `json:"date"`
	View string `json:"view"`
}

type headerRequest struct {
	Date string `json:"date"`
}

// pointerRequest is one raw input from the render surface. Date is an ISO
// date for all-day slots and RFC 3339 otherwise. At defaults to the
// server clock when omitted.
type pointerRequest struct {
	Kind        interaction.Kind `json:"kind"`
	View        string           `json:"view"`
	At          time.Time        `json:"at"`
	Date        string           `json:"date"`
	AllDay      bool             `json:"allDay"`
	EventID     model.ID         `json:"eventId"`
	EventAllDay bool             `json:"eventAllDay"`
	NewStart    time.Time        `json:"newStart"`
	NewEnd      time.Time        `json:"newEnd"`
}

func (p pointerRequest) toPointer(loc *time.Location, now time.Time) (interaction.Pointer, error) {
	switch p.Kind {
	case interaction.KindClick, interaction.KindHeaderClick, interaction.KindEventClick,
		interaction.KindDragStart, interaction.KindDrop, interaction.KindResizeStart, interaction.KindResizeEnd:
	default:
		return interaction.Pointer{}, fmt.Errorf("unknown pointer kind %q", p.Kind)
	}

	out := interaction.Pointer{
		Kind:        p.Kind,
		At:          p.At,
		EventID:     p.EventID,
		EventAllDay: p.EventAllDay,
		NewStart:    p.NewStart,
		NewEnd:      p.NewEnd,
	}
	if out.At.IsZero() {
		out.At = now
	}
	if p.View != "" {
		mode, ok := model.ParseViewMode(p.View)
		if !ok {
			return interaction.Pointer{}, fmt.Errorf("unknown view %q", p.View)
		}
		out.View = mode
	}
	if p.Date != "" {
		d, err := parseSlotDate(p.Date, p.AllDay, loc)
		if err != nil {
			return interaction.Pointer{}, err
		}
		out.Slot = interaction.Slot{Date: d, AllDay: p.AllDay}
	}
	return out, nil
}

func parseSlotDate(s string, allDay bool, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if allDay || len(s) == len(model.DateLayout) {
		if len(s) >= len(model.DateLayout) {
			if d, err := time.ParseInLocation(model.DateLayout, s[:len(model.DateLayout)], loc); err == nil {
				return d, nil
			}
		}
		return time.Time{}, fmt.Errorf("bad date %q", s)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t.In(loc), nil
}

type pointerResponse struct {
	Intent   interaction.IntentKind `json:"intent"`
	Date     *time.Time             `json:"date,omitempty"`
	EventID  model.ID               `json:"eventId,omitempty"`
	AllDay   bool                   `json:"allDay,omitempty"`
	View     *viewDTO               `json:"view,omitempty"`
	Detail   map[string]any         `json:"detail,omitempty"`
	Mutation *shell.GestureResult   `json:"mutation,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func toPointerResponse(res shell.PointerResult) pointerResponse {
	out := pointerResponse{
		Intent:   res.Intent.Kind,
		EventID:  res.Intent.EventID,
		AllDay:   res.Intent.AllDay,
		Detail:   res.Detail,
		Mutation: res.Mutation,
	}
	if !res.Intent.Date.IsZero() {
		d := res.Intent.Date
		out.Date = &d
	}
	if res.View != nil {
		v := toViewDTO(*res.View)
		out.View = &v
	}
	return out
}

type gestureRequest struct {
	ID    model.ID  `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type recurrenceDTO struct {
	Pattern     string `json:"pattern"`
	Occurrences int    `json:"occurrences,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
}

type createRequest struct {
	PatientID         model.ID       `json:"patientId"`
	ClinicianID       model.ID       `json:"clinicianId"`
	ClinicID          model.ID       `json:"clinicId"`
	AppointmentTypeID model.ID       `json:"appointmentTypeId"`
	ParentID          model.ID       `json:"parentAppointmentId"`
	Start             time.Time      `json:"start"`
	End               time.Time      `json:"end"`
	AllDay            bool           `json:"allDay"`
	Status            model.Status   `json:"status"`
	Notes             string         `json:"notes"`
	Recurrence        *recurrenceDTO `json:"recurrence"`
}

func (c createRequest) toDraft(loc *time.Location) (series.Draft, error) {
	if c.ClinicID == "" {
		return series.Draft{}, errors.New("clinicId is required")
	}
	if c.Status != "" && !c.Status.Valid() {
		return series.Draft{}, fmt.Errorf("unknown status %q", c.Status)
	}
	d := series.Draft{First: model.Appointment{
		Start:             c.Start,
		End:               c.End,
		AllDay:            c.AllDay,
		ClinicID:          c.ClinicID,
		ClinicianID:       c.ClinicianID,
		PatientID:         c.PatientID,
		AppointmentTypeID: c.AppointmentTypeID,
		ParentID:          c.ParentID,
		Status:            c.Status,
		Notes:             c.Notes,
	}}
	if c.AllDay && d.First.End.IsZero() {
		d.First.End = d.First.Start
	}

	if c.Recurrence == nil {
		return d, nil
	}
	pattern, err := model.ParsePattern(c.Recurrence.Pattern)
	if err != nil {
		return series.Draft{}, err
	}
	var rule model.RecurrenceRule
	switch {
	case c.Recurrence.Occurrences > 0 && c.Recurrence.EndDate != "":
		return series.Draft{}, errors.New("set either occurrences or endDate, not both")
	case c.Recurrence.EndDate != "":
		end, err := time.ParseInLocation(model.DateLayout, c.Recurrence.EndDate, loc)
		if err != nil {
			return series.Draft{}, fmt.Errorf("bad endDate %q", c.Recurrence.EndDate)
		}
		rule = model.Until(pattern, end)
	default:
		rule = model.AfterCount(pattern, c.Recurrence.Occurrences)
	}
	d.Rule = &rule
	return d, nil
}

type createResponse struct {
	IDs     []model.ID `json:"ids"`
	Created int        `json:"created"`
	Failed  int        `json:"failed"`
	GroupID string     `json:"groupId,omitempty"`
	Error   string     `json:"error,omitempty"`
}

type notificationsResponse struct {
	Items []notify.Notification `json:"items"`
	Last  uint64                `json:"last"`
}
