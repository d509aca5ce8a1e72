package web

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"llmarena/internal/battle"
)

// handleBattles lists battles still held in memory followed by stored ones.
func (h *Handler) handleBattles(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]bool)
	var out []battle.Record
	for _, b := range h.deps.Battles.Registry().List() {
		rec := b.Snapshot()
		seen[rec.ID] = true
		out = append(out, rec)
	}
	stored, err := h.deps.Store.ListBattles(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		h.writeError(w, err)
		return
	}
	for _, rec := range stored {
		if !seen[rec.ID] {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if out == nil {
		out = []battle.Record{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleBattle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if b, ok := h.deps.Battles.Registry().Get(id); ok {
		writeJSON(w, http.StatusOK, battleView(b.Snapshot()))
		return
	}
	rec, err := h.deps.Store.GetBattle(r.Context(), id)
	if err != nil {
		h.writeError(w, errors.Wrapf(err, "battle %s", id))
		return
	}
	writeJSON(w, http.StatusOK, battleView(rec))
}

func battleView(rec battle.Record) map[string]any {
	return map[string]any{"battle": rec, "progress": rec.Progress()}
}

func (h *Handler) handleStartBattle(w http.ResponseWriter, r *http.Request) {
	var cfg battle.Config
	if err := decodeJSON(r, &cfg); err != nil {
		h.writeError(w, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.checkModels(cfg.White, cfg.Black); err != nil {
		h.writeError(w, err)
		return
	}
	b, err := h.deps.Battles.Start(background(r), cfg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, battleView(b.Snapshot()))
}

func (h *Handler) handleStopBattle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b, ok := h.deps.Battles.Registry().Get(id)
	if !ok {
		h.writeError(w, errors.Wrapf(errNotFound, "battle %s", id))
		return
	}
	b.Stop()
	writeJSON(w, http.StatusOK, battleView(b.Snapshot()))
}
