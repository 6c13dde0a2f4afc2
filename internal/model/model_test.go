package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDAcceptsStringAndNumber(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"abc","b":42,"c":null}`), &v))
	assert.Equal(t, ID("abc"), v.A)
	assert.Equal(t, ID("42"), v.B)
	assert.Equal(t, ID(""), v.C)

	err := json.Unmarshal([]byte(`{"a":true}`), &v)
	assert.Error(t, err)
}

func TestAppointmentValidate(t *testing.T) {
	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	ok := Appointment{Start: start, End: start.Add(30 * time.Minute)}
	assert.NoError(t, ok.Validate())

	zero := Appointment{Start: start, End: start}
	assert.Error(t, zero.Validate())

	assert.Error(t, Appointment{}.Validate())
}

func TestNormalizeAllDay(t *testing.T) {
	loc := time.FixedZone("AEST", 10*3600)

	a := Appointment{
		AllDay: true,
		Start:  time.Date(2025, 3, 4, 0, 0, 0, 0, loc),
		End:    time.Date(2025, 3, 5, 0, 0, 0, 0, loc),
	}
	a.NormalizeAllDay(loc)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, loc), a.Start)
	assert.Equal(t, time.Date(2025, 3, 4, 23, 59, 0, 0, loc), a.End)

	b := Appointment{
		AllDay: true,
		Start:  time.Date(2025, 3, 4, 13, 15, 0, 0, loc),
		End:    time.Date(2025, 3, 4, 13, 15, 0, 0, loc),
	}
	b.NormalizeAllDay(loc)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, loc), b.Start)
	assert.Equal(t, time.Date(2025, 3, 4, 23, 59, 0, 0, loc), b.End)
	assert.NoError(t, b.Validate())

	timed := Appointment{Start: time.Date(2025, 3, 4, 9, 0, 0, 0, loc), End: time.Date(2025, 3, 4, 10, 0, 0, 0, loc)}
	timed.NormalizeAllDay(loc)
	assert.Equal(t, 9, timed.Start.Hour())
}

func TestParsers(t *testing.T) {
	p, err := ParsePattern("Weekly")
	require.NoError(t, err)
	assert.Equal(t, PatternWeekly, p)
	_, err = ParsePattern("yearly")
	assert.Error(t, err)

	v, ok := ParseViewMode("timeGridDay")
	assert.True(t, ok)
	assert.Equal(t, ViewDay, v)
	_, ok = ParseViewMode("agenda")
	assert.False(t, ok)

	assert.True(t, StatusNoShow.Valid())
	assert.False(t, Status("booked").Valid())
}
