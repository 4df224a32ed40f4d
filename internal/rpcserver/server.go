// Package rpcserver is the HTTP sink: REST routes under /v1 plus a
// websocket status stream, backed by the Match Coordinator.
package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/klingon-exchange/wagerd/internal/apperr"
	"github.com/klingon-exchange/wagerd/internal/coordinator"
	"github.com/klingon-exchange/wagerd/internal/dto"
	"github.com/klingon-exchange/wagerd/internal/hmacauth"
	"github.com/klingon-exchange/wagerd/internal/store"
	"github.com/klingon-exchange/wagerd/pkg/logging"
)

var log = logging.Component("rpcserver")

// Server is the HTTP/websocket sink for the wagerd API.
type Server struct {
	coord      *coordinator.Coordinator
	store      *store.Store
	hmacSecret string
	log        *logging.Logger
	wsHub      *wsHub

	httpServer *http.Server
	listener   net.Listener
}

// New builds a Server.
func New(coord *coordinator.Coordinator, st *store.Store, hmacSecret string) *Server {
	return &Server{
		coord:      coord,
		store:      st,
		hmacSecret: hmacSecret,
		log:        logging.Component("rpcserver"),
		wsHub:      newWSHub(),
	}
}

// Broadcast pushes a match's current projection to subscribed websocket
// clients; callers invoke this after any state-changing operation.
func (s *Server) Broadcast(matchID string, data interface{}) {
	s.wsHub.Broadcast(matchID, data)
}

// Start binds addr and begins serving. It returns once the listener is up;
// serving itself runs in a background goroutine.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/matches", s.handleCreateMatch)
	mux.HandleFunc("GET /v1/matches/code/{join_code}", s.handleLookupByJoinCode)
	mux.HandleFunc("POST /v1/matches/{match_id}/create-confirm", s.handleCreateConfirm)
	mux.HandleFunc("POST /v1/matches/{match_id}/join-confirm", s.handleJoinConfirm)
	mux.HandleFunc("POST /v1/matches/{match_id}/result", s.handleSubmitResult)
	mux.HandleFunc("GET /v1/matches/{match_id}/status", s.handleStatus)
	mux.HandleFunc("POST /v1/admin/matches/{match_id}/retry-finalization", s.handleAdminRetry)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("OPTIONS /", s.handleCORS)

	s.httpServer = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", "error", err)
		}
	}()

	s.log.Info("rpcserver started", "addr", addr)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Timestamp, X-Nonce, X-Signature")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeJSON reads and decodes body into v.
func decodeJSON(body io.Reader, v interface{}) error {
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return apperr.BadRequestf("invalid request body: %v", err)
	}
	return nil
}

// decodeJSONBytes decodes an already-read body (used on HMAC-gated routes,
// where the raw bytes were consumed for MAC verification first).
func decodeJSONBytes(raw []byte, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.BadRequestf("invalid request body: %v", err)
	}
	return nil
}

// requireHMAC reads the raw body, verifies the HMAC envelope against it,
// and only then returns the bytes for JSON decoding — verification must
// precede parsing so the MAC covers exactly what is checked.
func (s *Server) requireHMAC(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apperr.BadRequestf("failed to read request body")
	}
	if err := hmacauth.Verify(r.Context(), s.hmacSecret, r.Header, raw, s.store); err != nil {
		return nil, err
	}
	return raw, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.BadRequest:
		status = http.StatusBadRequest
	case apperr.Unauthorized:
		status = http.StatusUnauthorized
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.NotImplemented:
		status = http.StatusNotImplemented
	}

	msg := err.Error()
	if kind == apperr.Internal {
		log.Error("internal error", "err", err)
		msg = "internal error"
	}
	writeJSON(w, status, dto.ErrorBody{Error: msg})
}
