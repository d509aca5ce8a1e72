package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"llmarena/internal/archive"
	"llmarena/internal/db"
	"llmarena/internal/engine"
)

func (h *Handler) handleGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.GameFilter{
		Model:        strings.TrimSpace(q.Get("model")),
		White:        strings.TrimSpace(q.Get("white")),
		Black:        strings.TrimSpace(q.Get("black")),
		AllowSwap:    q.Get("swap") == "true",
		Result:       strings.TrimSpace(q.Get("result")),
		Termination:  strings.TrimSpace(q.Get("termination")),
		BattleID:     strings.TrimSpace(q.Get("battle")),
		TournamentID: strings.TrimSpace(q.Get("tournament")),
		Limit:        queryInt(r, "limit", 20),
		Offset:       queryInt(r, "offset", 0),
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	total, games, err := h.deps.Store.ListGames(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if games == nil {
		games = []db.GameSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "games": games})
}

// handleGame serves a stored game, or the live view of one still running.
func (h *Handler) handleGame(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.deps.Store.GetGame(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		if live, ok := h.deps.Live.Get(id); ok {
			writeJSON(w, http.StatusOK, live)
			return
		}
	}
	if err != nil {
		h.writeError(w, errors.Wrapf(err, "game %s", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleGamePGN(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.deps.Store.GetGame(r.Context(), id)
	if err != nil {
		h.writeError(w, errors.Wrapf(err, "game %s", id))
		return
	}
	pgn := rec.PGN
	if pgn == "" {
		pgn = engine.FormatPGN(rec)
	}
	w.Header().Set("Content-Type", "application/x-chess-pgn")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-%s.pgn", archive.FileStem(rec), rec.ID))
	_, _ = w.Write([]byte(pgn))
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	games := h.deps.Live.List()
	if games == nil {
		games = []engine.LiveState{}
	}
	writeJSON(w, http.StatusOK, games)
}

type startGameRequest struct {
	White   string `json:"white"`
	Black   string `json:"black"`
	ModelA  string `json:"modelA"`
	ModelB  string `json:"modelB"`
	Opening string `json:"opening"`
}

// handleStartGame plays one game. With explicit white and black the colours
// are fixed; modelA and modelB take turns with white across requests.
func (h *Handler) handleStartGame(w http.ResponseWriter, r *http.Request) {
	if h.deps.Games == nil {
		h.writeError(w, errors.New("game runner not configured"))
		return
	}
	var req startGameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	white, black := strings.TrimSpace(req.White), strings.TrimSpace(req.Black)
	if white == "" && black == "" && req.ModelA != "" && req.ModelB != "" {
		if err := h.checkModels(req.ModelA, req.ModelB); err != nil {
			h.writeError(w, err)
			return
		}
		assign, err := h.deps.Conf.GetAndToggleAssignment(r.Context(), req.ModelA, req.ModelB)
		if err != nil {
			h.writeError(w, err)
			return
		}
		white, black = assign.White, assign.Black
	}
	if white == "" || black == "" {
		h.writeError(w, errors.Wrap(errBadRequest, "white and black (or modelA and modelB) are required"))
		return
	}
	if err := h.checkModels(white, black); err != nil {
		h.writeError(w, err)
		return
	}
	id, err := h.deps.Games.StartGame(background(r), white, black, req.Opening)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"gameId": id, "white": white, "black": black})
}
