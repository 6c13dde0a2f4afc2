package shell

import (
	"time"

	"apptcal/internal/model"
)

func (s *Shell) View() model.ViewState { return s.navigator.State() }

// ApplyURL navigates to the date/view query parameters, deferring until
// the surface can be driven.
func (s *Shell) ApplyURL(date, view string) (model.ViewState, error) {
	return s.navigator.ApplyURL(date, view)
}

// HeaderClick drills a week-view column header into its day.
func (s *Shell) HeaderClick(day time.Time) (model.ViewState, error) {
	s.classifier.Reset()
	return s.navigator.HeaderClick(day)
}

func (s *Shell) Prev() model.ViewState  { return s.navigator.Prev() }
func (s *Shell) Next() model.ViewState  { return s.navigator.Next() }
func (s *Shell) Today() model.ViewState { return s.navigator.Today() }

// RenderSettled is the front-end's signal that the surface finished
// rendering. It unlocks URL navigation still pending.
func (s *Shell) RenderSettled() model.ViewState {
	s.pager.MarkReady()
	s.navigator.RenderSettled()
	return s.navigator.State()
}
