package web

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"llmarena/internal/db"
	"llmarena/internal/engine"
	"llmarena/internal/llm"
	"llmarena/internal/tournament"
)

// ModelView merges a registry entry with its live rating and stored record.
type ModelView struct {
	Name        string  `json:"name"`
	Provider    string  `json:"provider"`
	ModelID     string  `json:"modelId,omitempty"`
	Description string  `json:"description,omitempty"`
	Active      bool    `json:"active"`
	InitialElo  int     `json:"initialElo"`
	Rating      int     `json:"rating"`
	Games       int     `json:"games"`
	Wins        int     `json:"wins"`
	Draws       int     `json:"draws"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"winRate"`
	Breaker     string  `json:"breaker,omitempty"`
}

type LeaderboardRow struct {
	Rank int `json:"rank"`
	ModelView
}

func (h *Handler) modelViews(r *http.Request) ([]ModelView, error) {
	stored, err := h.deps.Store.ListModels(r.Context())
	if err != nil {
		return nil, err
	}
	byName := make(map[string]db.ModelRow, len(stored))
	for _, m := range stored {
		byName[m.Name] = m
	}

	var out []ModelView
	seen := make(map[string]bool)
	if h.deps.Models != nil {
		for _, m := range h.deps.Models.Models() {
			out = append(out, h.modelView(m, byName[m.Name]))
			seen[m.Name] = true
		}
	}
	// models that only exist in history, e.g. removed providers
	for _, row := range stored {
		if seen[row.Name] {
			continue
		}
		out = append(out, h.modelView(llm.Model{
			Name:        row.Name,
			Provider:    row.Provider,
			ModelID:     row.ModelID,
			Description: row.Description,
			InitialElo:  row.InitialElo,
		}, row))
	}
	return out, nil
}

func (h *Handler) modelView(m llm.Model, row db.ModelRow) ModelView {
	v := ModelView{
		Name:        m.Name,
		Provider:    m.Provider,
		ModelID:     m.ModelID,
		Description: m.Description,
		Active:      m.Active,
		InitialElo:  m.InitialElo,
		Rating:      row.Rating,
		Games:       row.Games,
		Wins:        row.Wins,
		Draws:       row.Draws,
		Losses:      row.Losses,
	}
	if h.deps.Ratings != nil {
		v.Rating = h.deps.Ratings.Rating(m.Name)
	}
	if v.Rating == 0 {
		v.Rating = m.InitialElo
	}
	if v.Games > 0 {
		v.WinRate = float64(v.Wins) * 100 / float64(v.Games)
	}
	if h.deps.Models != nil && m.Active {
		v.Breaker = h.deps.Models.BreakerState(m.Name).String()
	}
	return v
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	views, err := h.modelViews(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if r.URL.Query().Get("active") == "true" {
		active := views[:0]
		for _, v := range views {
			if v.Active {
				active = append(active, v)
			}
		}
		views = active
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	views, err := h.modelViews(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Rating != views[j].Rating {
			return views[i].Rating > views[j].Rating
		}
		return views[i].Name < views[j].Name
	})
	out := make([]LeaderboardRow, len(views))
	for i, v := range views {
		out[i] = LeaderboardRow{Rank: i + 1, ModelView: v}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleModelHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	known := false
	if h.deps.Models != nil {
		_, known = h.deps.Models.Model(name)
	}
	if !known {
		if _, err := h.deps.Store.GetModel(r.Context(), name); err != nil {
			h.writeError(w, errors.Wrapf(err, "model %q", name))
			return
		}
	}
	history, err := h.deps.Store.EloHistory(r.Context(), name, queryInt(r, "limit", 0))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if history == nil {
		history = []db.EloPoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"model": name, "history": history})
}

// StatsView is the stored aggregate plus what is running right now.
type StatsView struct {
	db.Stats
	LiveGames          int `json:"liveGames"`
	RunningBattles     int `json:"runningBattles"`
	RunningTournaments int `json:"runningTournaments"`
	ActiveModels       int `json:"activeModels"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Store.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	view := StatsView{Stats: st}
	for _, g := range h.deps.Live.List() {
		if g.Status == engine.LiveStatusPlaying {
			view.LiveGames++
		}
	}
	if h.deps.Battles != nil {
		for _, b := range h.deps.Battles.Registry().List() {
			if !b.Finished() {
				view.RunningBattles++
			}
		}
	}
	if h.deps.Tournaments != nil {
		for _, t := range h.deps.Tournaments.Registry().List() {
			if s := t.Status(); s == tournament.Running || s == tournament.Paused {
				view.RunningTournaments++
			}
		}
	}
	if h.deps.Models != nil {
		view.ActiveModels = len(h.deps.Models.Active())
	}
	writeJSON(w, http.StatusOK, view)
}
