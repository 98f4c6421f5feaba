package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"eventdash/internal/actions"
	"eventdash/internal/cache"
	"eventdash/internal/models"
	"eventdash/internal/readable"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.now().In(s.loc).Format(models.DateLayout)
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	events := cache.FromContext(r.Context()).FetchEvents(r.Context(), date)
	writeJSON(w, http.StatusOK, actions.FetchResult{EventsData: events, Date: date})
}

// createEvent is the form flow: the caller supplies every field and no
// temporal check applies.
func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.Event
	if err := decodeBody(r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(ev.Type) == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	if _, err := models.ParseDateTime(ev.Date, ev.Time, s.loc); err != nil {
		writeError(w, http.StatusBadRequest, "date and time must be YYYY-MM-DD and HH:mm")
		return
	}
	if ev.Guests < 0 {
		writeError(w, http.StatusBadRequest, "guests must not be negative")
		return
	}
	ev.ID = ""

	stored, ok := cache.FromContext(r.Context()).AddEvent(r.Context(), ev)
	if !ok {
		writeJSON(w, http.StatusAccepted, stored)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) exportEvents(w http.ResponseWriter, r *http.Request) {
	events := cache.FromContext(r.Context()).Events()

	var buf bytes.Buffer
	if err := readable.EncodeICS(&buf, events, s.loc, s.now()); err != nil {
		s.logger.Error("Failed to export events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export events")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) readableState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Exporter.Current())
}

func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Registry.Descriptors())
}

func (s *Server) invokeAction(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	args := actions.Args{}
	if err := decodeBody(r, &args); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	inv, err := s.session.Registry.Invoke(r.Context(), name, args)
	switch {
	case errors.Is(err, actions.ErrActionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeJSON(w, invocationStatus(err), inv)
	default:
		writeJSON(w, http.StatusOK, inv)
	}
}

func invocationStatus(err error) int {
	var temporal *actions.TemporalValidationError
	switch {
	case errors.As(err, &temporal),
		errors.Is(err, actions.ErrMissingParam),
		errors.Is(err, actions.ErrInvalidParamType),
		errors.Is(err, actions.ErrInvalidParam):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant is not configured")
		return
	}

	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.assistant.Send(r.Context(), req.Message)
	if err != nil {
		s.logger.Error("Assistant turn failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
