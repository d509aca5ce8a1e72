package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"llmarena/internal/battle"
	"llmarena/internal/configstore"
	"llmarena/internal/db"
	"llmarena/internal/engine"
	"llmarena/internal/events"
	"llmarena/internal/llm"
	"llmarena/internal/rating"
	"llmarena/internal/tournament"
)

// GameStarter plays a single ad-hoc game in the background.
type GameStarter interface {
	StartGame(ctx context.Context, white, black, opening string) (string, error)
}

// StartScheduler arranges for a tournament to start at its StartAt time.
type StartScheduler interface {
	ScheduleStart(t *tournament.Tournament) error
}

type Deps struct {
	Store       *db.Store
	Conf        *configstore.Store
	Models      *llm.Registry
	Ratings     *rating.Book
	Live        *engine.LiveBoard
	Games       GameStarter
	Battles     *battle.Orchestrator
	Tournaments *tournament.Orchestrator
	Scheduler   StartScheduler
	Events      *events.Broadcaster
	AdminToken  string
}

type Handler struct {
	log      *slog.Logger
	deps     Deps
	upgrader websocket.Upgrader
}

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

func NewHandler(log *slog.Logger, deps Deps) *Handler {
	if deps.Live == nil {
		deps.Live = engine.NewLiveBoard()
	}
	if deps.Events == nil {
		deps.Events = events.NewBroadcaster()
	}
	return &Handler{
		log:  log.With(slog.String("component", "web")),
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router wires every route behind CORS and panic recovery.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/models", h.handleModels).Methods(http.MethodGet)
	api.HandleFunc("/models/{name}/history", h.handleModelHistory).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", h.handleLeaderboard).Methods(http.MethodGet)
	api.HandleFunc("/rankings", h.handleRankings).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)

	api.HandleFunc("/games", h.handleGames).Methods(http.MethodGet)
	api.HandleFunc("/games", h.requireAdmin(h.handleStartGame)).Methods(http.MethodPost)
	api.HandleFunc("/games/{id}", h.handleGame).Methods(http.MethodGet)
	api.HandleFunc("/games/{id}/pgn", h.handleGamePGN).Methods(http.MethodGet)
	api.HandleFunc("/live", h.handleLive).Methods(http.MethodGet)

	api.HandleFunc("/battles", h.handleBattles).Methods(http.MethodGet)
	api.HandleFunc("/battles", h.requireAdmin(h.handleStartBattle)).Methods(http.MethodPost)
	api.HandleFunc("/battles/{id}", h.handleBattle).Methods(http.MethodGet)
	api.HandleFunc("/battles/{id}/stop", h.requireAdmin(h.handleStopBattle)).Methods(http.MethodPost)

	api.HandleFunc("/tournaments", h.handleTournaments).Methods(http.MethodGet)
	api.HandleFunc("/tournaments", h.requireAdmin(h.handleCreateTournament)).Methods(http.MethodPost)
	api.HandleFunc("/tournaments/{id}", h.handleTournament).Methods(http.MethodGet)
	api.HandleFunc("/tournaments/{id}/{action:start|pause|resume|stop}", h.requireAdmin(h.handleTournamentAction)).Methods(http.MethodPost)

	api.HandleFunc("/settings", h.handleSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.requireAdmin(h.handleUpdateSettings)).Methods(http.MethodPut)

	api.Handle("/events", events.SSEHandler(h.deps.Events)).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.handleWebSocket)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", adminHeader}),
	)
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{h.log}))
	return recovery(cors(r))
}

type recoveryLogger struct{ log *slog.Logger }

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("handler_panic", slog.String("panic", fmt.Sprint(v...)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, battle.ErrInvalidConfig),
		errors.Is(err, tournament.ErrInvalidConfig),
		errors.Is(err, tournament.ErrTooFewParticipants),
		errors.Is(err, tournament.ErrUnknownType),
		errors.Is(err, llm.ErrUnknownModel),
		errors.Is(err, llm.ErrInactiveModel),
		errors.Is(err, configstore.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, errNotFound), errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tournament.ErrBadTransition):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request_failed", slog.String("err", err.Error()))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errBadRequest, "invalid JSON body: "+err.Error())
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// checkModels fails for names the registry does not know or cannot play.
func (h *Handler) checkModels(names ...string) error {
	if h.deps.Models == nil {
		return nil
	}
	for _, name := range names {
		m, ok := h.deps.Models.Model(name)
		if !ok {
			return errors.Wrapf(llm.ErrUnknownModel, "%q", name)
		}
		if !m.Active {
			return errors.Wrapf(llm.ErrInactiveModel, "%q", name)
		}
	}
	return nil
}

// background detaches work started by a request from the request's lifetime.
func background(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
