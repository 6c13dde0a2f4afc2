package series

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apptcal/internal/api"
	"apptcal/internal/model"
	"apptcal/internal/recurrence"
)

type stubTokens struct {
	n   int
	err error
}

func (s *stubTokens) Token(context.Context) (string, error) {
	s.n++
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("tok-%d", s.n), nil
}

type stubPoster struct {
	reqs   []api.CreateRequest
	tokens []string
	// failAt is the 1-based request number to reject; 0 never fails.
	failAt int
}

func (s *stubPoster) Create(_ context.Context, token string, req api.CreateRequest) (api.Created, error) {
	s.reqs = append(s.reqs, req)
	s.tokens = append(s.tokens, token)
	if len(s.reqs) == s.failAt {
		return api.Created{}, &api.StatusError{Method: "POST", Path: "/appointments/", Status: 400}
	}
	return api.Created{ID: model.ID(fmt.Sprint(100 + len(s.reqs)))}, nil
}

func mondayDraft() model.Appointment {
	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	return model.Appointment{
		Start:       start,
		End:         start.Add(45 * time.Minute),
		ClinicID:    "c1",
		ClinicianID: "dr",
		PatientID:   "p1",
		Notes:       "physio",
	}
}

func newCreator(tokens *stubTokens, poster *stubPoster, strategy Strategy) *Creator {
	return NewCreator(Options{
		Tokens:     tokens,
		Poster:     poster,
		Strategy:   strategy,
		Recurrence: recurrence.Config{Location: time.UTC},
	})
}

func TestSingleAppointment(t *testing.T) {
	tokens, poster := &stubTokens{}, &stubPoster{}
	res, err := newCreator(tokens, poster, StrategyClient).Create(context.Background(), Draft{First: mondayDraft()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, []model.ID{"101"}, res.IDs)
	require.Len(t, poster.reqs, 1)
	assert.False(t, poster.reqs[0].IsRecurring)
	assert.Equal(t, model.StatusScheduled, poster.reqs[0].Status)
}

func TestClientStrategyPostsEachInstanceWithFreshToken(t *testing.T) {
	tokens, poster := &stubTokens{}, &stubPoster{}
	rule := model.AfterCount(model.PatternWeekly, 4)
	res, err := newCreator(tokens, poster, StrategyClient).Create(context.Background(), Draft{First: mondayDraft(), Rule: &rule})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Created)
	assert.NotEmpty(t, res.GroupID)
	assert.Equal(t, []string{"tok-1", "tok-2", "tok-3", "tok-4"}, poster.tokens)

	days := []int{6, 13, 20, 27}
	for i, req := range poster.reqs {
		assert.Equal(t, days[i], req.StartTime.Day())
		assert.Equal(t, 9, req.StartTime.Hour())
		assert.Equal(t, 45*time.Minute, req.EndTime.Sub(req.StartTime))
		assert.Equal(t, res.GroupID, req.RecurrenceGroup)
		assert.Equal(t, model.ID("c1"), req.Clinic)
		assert.False(t, req.IsRecurring)
	}
}

func TestClientStrategyPartialFailureKeepsCreated(t *testing.T) {
	tokens, poster := &stubTokens{}, &stubPoster{failAt: 3}
	rule := model.AfterCount(model.PatternWeekly, 6)
	res, err := newCreator(tokens, poster, StrategyClient).Create(context.Background(), Draft{First: mondayDraft(), Rule: &rule})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialSeries)
	var perr *PartialFailureError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 5, perr.Created)
	assert.Equal(t, 1, perr.Failed)
	var serr *api.StatusError
	assert.ErrorAs(t, err, &serr)

	assert.Len(t, poster.reqs, 6, "later instances still sent")
	assert.Equal(t, 5, res.Created)
	assert.Len(t, res.IDs, 5)
}

func TestTokenFailureCountsAsFailedInstance(t *testing.T) {
	tokens, poster := &stubTokens{err: errors.New("no token")}, &stubPoster{}
	rule := model.AfterCount(model.PatternDaily, 2)
	res, err := newCreator(tokens, poster, StrategyClient).Create(context.Background(), Draft{First: mondayDraft(), Rule: &rule})
	assert.ErrorIs(t, err, ErrPartialSeries)
	assert.Equal(t, 2, res.Failed)
	assert.Empty(t, poster.reqs)
}

func TestOverflowAbortsBeforeAnyPost(t *testing.T) {
	tokens, poster := &stubTokens{}, &stubPoster{}
	rule := model.Until(model.PatternDaily, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	for _, s := range []Strategy{StrategyClient, StrategyServer} {
		_, err := newCreator(tokens, poster, s).Create(context.Background(), Draft{First: mondayDraft(), Rule: &rule})
		assert.ErrorIs(t, err, recurrence.ErrOverflow, s)
	}
	assert.Zero(t, tokens.n)
	assert.Empty(t, poster.reqs)
}

func TestServerStrategySendsRule(t *testing.T) {
	tokens, poster := &stubTokens{}, &stubPoster{}
	rule := model.Until(model.PatternBiweekly, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))
	res, err := newCreator(tokens, poster, StrategyServer).Create(context.Background(), Draft{First: mondayDraft(), Rule: &rule})
	require.NoError(t, err)

	require.Len(t, poster.reqs, 1)
	req := poster.reqs[0]
	assert.True(t, req.IsRecurring)
	assert.Equal(t, "biweekly", req.RecurrencePattern)
	assert.Equal(t, "2025-03-31", req.RecurrenceEndDate)
	assert.Zero(t, req.NumberOfOccurrences)
	assert.Equal(t, 1, res.Created)
	assert.NotEmpty(t, res.GroupID)
}

func TestInvalidDraftRejected(t *testing.T) {
	tokens, poster := &stubTokens{}, &stubPoster{}
	d := mondayDraft()
	d.End = d.Start
	_, err := newCreator(tokens, poster, StrategyClient).Create(context.Background(), Draft{First: d})
	assert.Error(t, err)
	assert.Empty(t, poster.reqs)

	rule := model.AfterCount(model.PatternWeekly, 0)
	_, err = newCreator(tokens, poster, StrategyClient).Create(context.Background(), Draft{First: mondayDraft(), Rule: &rule})
	assert.ErrorIs(t, err, recurrence.ErrInvalidRule)
	assert.Empty(t, poster.reqs)
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, StrategyServer, ParseStrategy(" Server "))
	assert.Equal(t, StrategyClient, ParseStrategy(""))
	assert.Equal(t, StrategyClient, ParseStrategy("bogus"))
}
