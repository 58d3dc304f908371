package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"stepledger/internal/core"
	"stepledger/internal/ledger"
	"stepledger/internal/log"
)

const maxBodyBytes = 1 << 10

type deltaRequest struct {
	Steps *int64 `json:"steps"`
}

type deltaResponse struct {
	Date       core.DayKey `json:"date"`
	TotalSteps int64       `json:"total_steps"`
}

type lifecycleRequest struct {
	State string `json:"state"`
}

type historyResponse struct {
	Entries []core.DayEntry `json:"entries"`
	Count   int             `json:"count"`
}

type summaryResponse struct {
	Summary *core.Summary `json:"summary"`
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Today(r.Context()))
}

func (s *Server) handleRecordDelta(w http.ResponseWriter, r *http.Request) {
	var req deltaRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Steps == nil {
		writeError(w, r, http.StatusBadRequest, "missing field: steps")
		return
	}

	snap, err := s.ledger.RecordDelta(r.Context(), *req.Steps)
	if err != nil {
		if errors.Is(err, core.ErrNegativeDelta) {
			writeError(w, r, http.StatusUnprocessableEntity, "steps must not be negative")
			return
		}
		s.logger.ErrorContext(r.Context(), "record delta failed", log.FieldError, err.Error())
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, deltaResponse{
		Date:       snap.Date,
		TotalSteps: snap.Steps,
	})
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	state := ledger.AppState(req.State)
	switch state {
	case ledger.StateActive, ledger.StateBackground, ledger.StateInactive:
	default:
		writeError(w, r, http.StatusUnprocessableEntity, "unknown lifecycle state")
		return
	}

	s.ledger.HandleLifecycle(r.Context(), state)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	order := r.URL.Query().Get("order")
	switch order {
	case "", "desc", "asc":
	default:
		writeError(w, r, http.StatusBadRequest, "order must be asc or desc")
		return
	}
	ascending := order == "asc"

	key := "order:" + order
	entries, ok := s.historyCache.Get(key)
	if !ok {
		entries = s.ledger.History(r.Context(), ascending)
		s.historyCache.Set(key, entries)
	}

	writeJSON(w, http.StatusOK, historyResponse{Entries: entries, Count: len(entries)})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Clear(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "clear history failed", log.FieldError, err.Error())
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	windowDays, ok := parseWindow(r.URL.Query().Get("window"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "window must be 7, 30 or all")
		return
	}

	key := "window:" + r.URL.Query().Get("window")
	summary, cached := s.summaryCache.Get(key)
	if !cached {
		var err error
		summary, err = s.ledger.Summary(r.Context(), windowDays)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		s.summaryCache.Set(key, summary)
	}

	writeJSON(w, http.StatusOK, summaryResponse{Summary: summary})
}

// parseWindow maps the window query parameter to a day count. An absent
// parameter means the weekly view.
func parseWindow(raw string) (int, bool) {
	switch raw {
	case "", "7":
		return 7, true
	case "30":
		return 30, true
	case "all":
		return 0, true
	default:
		return 0, false
	}
}

// decodeBody reads a small JSON body, rejecting unknown fields and trailing
// garbage.
func decodeBody(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}
