// Package admin serves the operator HTTP surface: metrics, health and
// read-only game inspection.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/signalsfoundry/stellar-empires/internal/gameapi"
	"github.com/signalsfoundry/stellar-empires/internal/ledger"
	"github.com/signalsfoundry/stellar-empires/internal/logging"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/model"
)

// LedgerReader is the query side of the turn ledger.
type LedgerReader interface {
	Turns(ctx context.Context, gameID string) ([]ledger.TurnRow, error)
	Battles(ctx context.Context, gameID string, turnNo int) ([]ledger.BattleRow, error)
	Standings(ctx context.Context, gameID string, empire model.EmpireID) ([]ledger.StandingRow, error)
}

// GameDetail is the body of /debug/games/{id}.
type GameDetail struct {
	gameapi.GameInfo
	History []*state.TurnSummary `json:"history"`
}

// Server holds the admin routes.
type Server struct {
	svc     *gameapi.Service
	metrics http.Handler
	ledger  LedgerReader
	log     logging.Logger
}

// NewRouter builds the admin router. metrics and ledger may be nil.
func NewRouter(svc *gameapi.Service, metrics http.Handler, lr LedgerReader, log logging.Logger) *mux.Router {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{svc: svc, metrics: metrics, ledger: lr, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	debug := r.PathPrefix("/debug").Subrouter()
	debug.HandleFunc("/games", s.handleGames).Methods(http.MethodGet)
	debug.HandleFunc("/games/{id}", s.handleGame).Methods(http.MethodGet)
	if lr != nil {
		debug.HandleFunc("/games/{id}/turns", s.handleTurns).Methods(http.MethodGet)
		debug.HandleFunc("/games/{id}/turns/{turn:[0-9]+}/battles", s.handleBattles).Methods(http.MethodGet)
		debug.HandleFunc("/games/{id}/empires/{empire}/standings", s.handleStandings).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(r.Context(), w, http.StatusOK, s.svc.Games())
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	info, err := s.svc.Info(id)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	history, err := s.svc.History(id)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeJSON(r.Context(), w, http.StatusOK, GameDetail{GameInfo: info, History: history})
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.Turns(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeJSON(r.Context(), w, http.StatusOK, rows)
}

func (s *Server) handleBattles(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	turnNo, err := strconv.Atoi(vars["turn"])
	if err != nil {
		http.Error(w, "bad turn", http.StatusBadRequest)
		return
	}
	rows, err := s.ledger.Battles(r.Context(), vars["id"], turnNo)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeJSON(r.Context(), w, http.StatusOK, rows)
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rows, err := s.ledger.Standings(r.Context(), vars["id"], model.EmpireID(vars["empire"]))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeJSON(r.Context(), w, http.StatusOK, rows)
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, gameapi.ErrGameNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.log.Warn(ctx, "admin request failed", logging.Err(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn(ctx, "admin response encode failed", logging.Err(err))
	}
}
