package web

import "net/http"

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.Conf.GetConfig(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleUpdateSettings replaces the tunables. Fields left out of the body
// keep their current values.
func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.Conf.GetConfig(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := decodeJSON(r, &cfg); err != nil {
		h.writeError(w, err)
		return
	}
	updated, err := h.deps.Conf.UpdateConfig(r.Context(), cfg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
