package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"apptcal/internal/api"
	appLog "apptcal/internal/log"
	"apptcal/internal/model"
	"apptcal/internal/mutation"
	"apptcal/internal/navigation"
	"apptcal/internal/recurrence"
	"apptcal/internal/series"
)

// handleEvents returns the visible events. A failed last fetch yields an
// empty list with the error, never stale data.
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	events, fetchErr := s.shell.Events()
	resp := eventsResponse{
		Events: make([]eventDTO, 0, len(events)),
		View:   toViewDTO(s.shell.View()),
	}
	for _, ev := range events {
		resp.Events = append(resp.Events, toEventDTO(ev))
	}
	if fetchErr != nil {
		resp.Error = "calendar could not be loaded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.shell.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "calendar could not be loaded")
		return
	}
	s.handleEvents(w, r)
}

func (s *Server) handleClinics(w http.ResponseWriter, _ *http.Request) {
	clinics := s.shell.Clinics()
	out := make([]clinicDTO, 0, len(clinics))
	for _, c := range clinics {
		out = append(out, clinicDTO{ID: c.ID, Title: c.Title, Color: c.Color, Enabled: c.Enable})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClinicToggle(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	var req clinicToggleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !s.shell.SetClinicEnabled(id, req.Enabled) {
		writeError(w, http.StatusNotFound, "unknown clinic")
		return
	}
	s.handleClinics(w, r)
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	p, err := req.toPointer(s.shell.Location(), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.shell.HandlePointer(r.Context(), p)
	out := toPointerResponse(res)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, navigation.ErrNotReady):
		out.Error = "calendar is still loading"
		writeJSON(w, http.StatusConflict, out)
	default:
		out.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, out)
	}
}

func (s *Server) handleDrag(w http.ResponseWriter, r *http.Request)   { s.handleGesture(w, r, false) }
func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) { s.handleGesture(w, r, true) }

// handleGesture always answers 200 for a completed gesture; Reverted in
// the body tells the front-end to put the element back.
func (s *Server) handleGesture(w http.ResponseWriter, r *http.Request, resize bool) {
	var req gestureRequest
	if err := decodeJSON(w, r, &req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if resize {
		writeJSON(w, http.StatusOK, s.shell.Resize(r.Context(), req.ID, req.Start, req.End))
		return
	}
	writeJSON(w, http.StatusOK, s.shell.Drag(r.Context(), req.ID, req.Start, req.End))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	draft, err := req.toDraft(s.shell.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.shell.Create(r.Context(), draft)
	out := createResponse{IDs: res.IDs, Created: res.Created, Failed: res.Failed, GroupID: res.GroupID}
	if out.IDs == nil {
		out.IDs = []model.ID{}
	}

	status := http.StatusCreated
	switch {
	case err == nil:
	case errors.Is(err, series.ErrPartialSeries):
		status = http.StatusMultiStatus
	case errors.Is(err, recurrence.ErrOverflow), errors.Is(err, recurrence.ErrInvalidRule):
		status = http.StatusUnprocessableEntity
	default:
		var serr *api.StatusError
		if errors.As(err, &serr) && serr.Status >= 400 && serr.Status < 500 {
			status = http.StatusUnprocessableEntity
		} else if res.Failed == 0 {
			// Draft validation failed before anything was sent.
			status = http.StatusBadRequest
		} else {
			status = http.StatusBadGateway
		}
	}
	if err != nil {
		out.Error = err.Error()
		appLog.Warn("create appointment failed", "status", status, "error", err.Error())
	}
	writeJSON(w, status, out)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	var req api.DetailsPatch
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if err := s.shell.UpdateDetails(r.Context(), id, req); err != nil {
		writeMutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	if err := s.shell.Delete(r.Context(), id); err != nil {
		writeMutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeMutationError(w http.ResponseWriter, err error) {
	var serr *api.StatusError
	switch {
	case errors.Is(err, mutation.ErrToken):
		writeError(w, http.StatusServiceUnavailable, "could not obtain a request token")
	case errors.As(err, &serr) && serr.Status == http.StatusNotFound:
		writeError(w, http.StatusNotFound, "appointment not found")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toViewDTO(s.shell.View()))
}

// handleViewURL takes the page's date/view query parameters, from the
// JSON body or the query string.
func (s *Server) handleViewURL(w http.ResponseWriter, r *http.Request) {
	req := viewRequest{Date: r.URL.Query().Get("date"), View: r.URL.Query().Get("view")}
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	v, err := s.shell.ApplyURL(req.Date, req.View)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(v))
}

func (s *Server) handleViewHeader(w http.ResponseWriter, r *http.Request) {
	var req headerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	day, err := time.ParseInLocation(model.DateLayout, req.Date, s.shell.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad date")
		return
	}
	v, err := s.shell.HeaderClick(day)
	if err != nil {
		writeJSON(w, http.StatusConflict, toViewDTO(v))
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(v))
}

func (s *Server) handleViewSettled(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toViewDTO(s.shell.RenderSettled()))
}

func (s *Server) handleViewPage(w http.ResponseWriter, r *http.Request) {
	var v model.ViewState
	switch chi.URLParam(r, "action") {
	case "prev":
		v = s.shell.Prev()
	case "next":
		v = s.shell.Next()
	case "today":
		v = s.shell.Today()
	default:
		writeError(w, http.StatusNotFound, "unknown view action")
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(v))
}
