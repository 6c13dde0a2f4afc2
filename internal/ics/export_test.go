package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apptcal/internal/model"
	"apptcal/internal/store"
)

func sampleEvents() []store.VisibleEvent {
	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	return []store.VisibleEvent{
		{
			Appointment: model.Appointment{
				ID: "41", Title: "Jane Doe", Start: start, End: start.Add(30 * time.Minute),
				ClinicID: "c1", PatientID: "p1", PatientName: "Jane Doe", ClinicianName: "Dr Who",
				Status: model.StatusScheduled, RecurrenceGroupID: "grp-1",
			},
			Color:       "#2a9d8f",
			ClinicTitle: "North",
		},
		{
			Appointment: model.Appointment{
				ID: "42", Start: time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 1, 7, 23, 59, 0, 0, time.UTC),
				AllDay: true, ClinicID: "c2", Notes: "Clinic closed", Status: model.StatusCancelled,
			},
			ClinicTitle: "South",
		},
	}
}

func parse(t *testing.T, body string) map[string]*ical.VEvent {
	t.Helper()
	cal, err := ical.ParseCalendar(strings.NewReader(body))
	require.NoError(t, err)
	out := make(map[string]*ical.VEvent)
	for _, ve := range cal.Events() {
		out[ve.Id()] = ve
	}
	return out
}

func prop(ve *ical.VEvent, p ical.ComponentProperty) string {
	if ip := ve.GetProperty(p); ip != nil {
		return ip.Value
	}
	return ""
}

func TestExportOneEventPerInstance(t *testing.T) {
	stamp := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	body := Export(sampleEvents(), ExportOptions{Name: "Clinic calendar", Location: time.UTC, Now: func() time.Time { return stamp }})

	assert.Contains(t, body, "X-WR-CALNAME:Clinic calendar")
	events := parse(t, body)
	require.Len(t, events, 2)

	timed := events[UID("41")]
	require.NotNil(t, timed)
	assert.Equal(t, "Jane Doe", prop(timed, ical.ComponentPropertySummary))
	assert.Equal(t, "North", prop(timed, ical.ComponentPropertyCategories))
	assert.Equal(t, "c1", prop(timed, propClinicID))
	assert.Equal(t, "grp-1", prop(timed, propGroupID))
	assert.Equal(t, "CONFIRMED", prop(timed, ical.ComponentPropertyStatus))
	assert.Equal(t, "20250106T090000Z", prop(timed, ical.ComponentPropertyDtStart))
	assert.Equal(t, "20250106T093000Z", prop(timed, ical.ComponentPropertyDtEnd))
	start, err := timed.GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)))
}

func TestExportAllDayAsDates(t *testing.T) {
	events := parse(t, Export(sampleEvents(), ExportOptions{Location: time.UTC}))

	allDay := events[UID("42")]
	require.NotNil(t, allDay)
	assert.Equal(t, "20250107", prop(allDay, ical.ComponentPropertyDtStart))
	assert.Equal(t, "20250108", prop(allDay, ical.ComponentPropertyDtEnd))
	assert.Equal(t, "Clinic closed", prop(allDay, ical.ComponentPropertySummary))
	assert.Equal(t, "CANCELLED", prop(allDay, ical.ComponentPropertyStatus))
}

func TestExportEmpty(t *testing.T) {
	body := Export(nil, ExportOptions{})
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.NotContains(t, body, "BEGIN:VEVENT")
}
