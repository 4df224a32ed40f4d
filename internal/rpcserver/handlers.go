package rpcserver

import (
	"net/http"
	"strconv"

	"github.com/klingon-exchange/wagerd/internal/apperr"
	"github.com/klingon-exchange/wagerd/internal/dto"
)

func parseMatchID(r *http.Request) (int64, error) {
	raw := r.PathValue("match_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequestf("match_id must be a positive integer")
	}
	return id, nil
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateMatchRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.coord.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLookupByJoinCode(w http.ResponseWriter, r *http.Request) {
	joinCode := r.PathValue("join_code")
	resp, err := s.coord.LookupByJoinCode(r.Context(), joinCode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateConfirm(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseMatchID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req dto.CreateConfirmRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.coord.CreateConfirm(r.Context(), matchID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	s.notify(r, matchID)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJoinConfirm(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseMatchID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req dto.JoinConfirmRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.coord.JoinConfirm(r.Context(), matchID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	s.notify(r, matchID)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseMatchID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	raw, err := s.requireHMAC(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req dto.ResultRequest
	if err := decodeJSONBytes(raw, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.coord.SubmitResult(r.Context(), matchID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	s.notify(r, matchID)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseMatchID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.coord.Status(r.Context(), matchID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminRetry(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseMatchID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	raw, err := s.requireHMAC(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req dto.RetryFinalizationRequest
	if err := decodeJSONBytes(raw, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.coord.AdminRetryFinalization(r.Context(), matchID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	s.notify(r, matchID)
	writeJSON(w, http.StatusOK, resp)
}

// notify pushes the match's current status projection to websocket
// subscribers after a state-changing request.
func (s *Server) notify(r *http.Request, matchID int64) {
	resp, err := s.coord.Status(r.Context(), matchID)
	if err != nil {
		return
	}
	s.Broadcast(resp.MatchID, resp)
}
