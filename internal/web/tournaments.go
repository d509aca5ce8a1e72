package web

import (
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"llmarena/internal/tournament"
)

func (h *Handler) handleTournaments(w http.ResponseWriter, r *http.Request) {
	status := tournament.Status(r.URL.Query().Get("status"))
	seen := make(map[string]bool)
	var out []tournament.Record
	for _, t := range h.deps.Tournaments.Registry().List() {
		rec := t.Snapshot()
		seen[rec.ID] = true
		if status == "" || rec.Status == status {
			out = append(out, rec)
		}
	}
	stored, err := h.deps.Store.ListTournaments(r.Context(), status, queryInt(r, "limit", 50))
	if err != nil {
		h.writeError(w, err)
		return
	}
	for _, rec := range stored {
		if !seen[rec.ID] {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if out == nil {
		out = []tournament.Record{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleTournament(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if t, ok := h.deps.Tournaments.Registry().Get(id); ok {
		writeJSON(w, http.StatusOK, t.Snapshot())
		return
	}
	rec, err := h.deps.Store.GetTournament(r.Context(), id)
	if err != nil {
		h.writeError(w, errors.Wrapf(err, "tournament %s", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type createTournamentRequest struct {
	tournament.Config
	AutoStart bool `json:"autoStart"`
}

// handleCreateTournament registers a tournament. It starts right away with
// autoStart, at StartAt when one is given, or later through the start action.
func (h *Handler) handleCreateTournament(w http.ResponseWriter, r *http.Request) {
	var req createTournamentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := req.Config.Validate(); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.checkModels(req.Participants...); err != nil {
		h.writeError(w, err)
		return
	}
	if req.StartAt != nil && !req.StartAt.After(time.Now()) {
		req.StartAt = nil
		req.AutoStart = true
	}

	ctx := background(r)
	t, err := h.deps.Tournaments.Create(ctx, req.Config)
	if err != nil {
		h.writeError(w, err)
		return
	}
	switch {
	case req.AutoStart:
		err = h.deps.Tournaments.Start(ctx, t)
	case req.StartAt != nil && h.deps.Scheduler != nil:
		err = h.deps.Scheduler.ScheduleStart(t)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t.Snapshot())
}

func (h *Handler) handleTournamentAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	t, ok := h.deps.Tournaments.Registry().Get(vars["id"])
	if !ok {
		h.writeError(w, errors.Wrapf(errNotFound, "tournament %s", vars["id"]))
		return
	}
	var err error
	switch vars["action"] {
	case "start":
		err = h.deps.Tournaments.Start(background(r), t)
	case "pause":
		err = t.Pause()
	case "resume":
		err = t.Resume()
	case "stop":
		t.Stop()
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t.Snapshot())
}
