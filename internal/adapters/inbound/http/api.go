package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/archon-research/stl-lend/internal/ports/inbound"
)

const maxBodyBytes = 1 << 16

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/simulate", s.handleSimulate)
	mux.HandleFunc("POST /api/actions", s.handleAction)
	mux.HandleFunc("GET /api/sequence", s.handleSequence)
	mux.HandleFunc("DELETE /api/sequence", s.handleCancelSequence)
	mux.HandleFunc("GET /api/liquidations", s.handleLiquidations)
	mux.HandleFunc("POST /api/liquidations/{borrower}", s.handleCheckBorrower)
	mux.HandleFunc("POST /api/liquidations/{borrower}/liquidate", s.handleLiquidate)
	mux.HandleFunc("GET /api/notices", s.handleNotices)
	mux.HandleFunc("DELETE /api/notices/{id}", s.handleDismissNotice)
	mux.HandleFunc("GET /api/stream", s.handleStream)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.service.Snapshot(r.Context()))
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req inbound.SimulateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	view, err := s.service.Simulate(r.Context(), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req inbound.ActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	s.execute(w, r, req)
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount string `json:"amount"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, err)
		return
	}
	s.execute(w, r, inbound.ActionRequest{
		Kind:     "liquidate",
		Amount:   body.Amount,
		Borrower: r.PathValue("borrower"),
	})
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, req inbound.ActionRequest) {
	seq, err := s.service.Execute(r.Context(), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.logger.Info("action accepted", "action", seq.Action, "sequence", seq.ID)
	s.respondJSON(w, http.StatusAccepted, seq)
}

func (s *Server) handleSequence(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.service.Sequence())
}

func (s *Server) handleCancelSequence(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.service.CancelSequence(r.Context()))
}

func (s *Server) handleLiquidations(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.service.Liquidations())
}

func (s *Server) handleCheckBorrower(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.CheckBorrower(r.Context(), r.PathValue("borrower"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, fmt.Errorf("%w: limit must be a non-negative integer", inbound.ErrMalformedRequest))
			return
		}
		limit = n
	}
	s.respondJSON(w, http.StatusOK, s.service.Notices(limit))
}

func (s *Server) handleDismissNotice(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DismissNotice(r.PathValue("id")); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status, class := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "status", status, "error", err)
	}
	s.respondJSON(w, status, errorResponse{Error: err.Error(), Class: class})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, inbound.ErrMalformedRequest):
		return http.StatusBadRequest, "malformed"
	case errors.Is(err, inbound.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "input"
	case errors.Is(err, inbound.ErrSafetyGate):
		return http.StatusUnprocessableEntity, "safety_gate"
	case errors.Is(err, inbound.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, inbound.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, inbound.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusBadGateway, "chain"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", inbound.ErrMalformedRequest, err)
	}
	return nil
}
