package api

import (
	"encoding/json"
	"net/http"

	"tempo/internal/domain"
	"tempo/internal/events"
	"tempo/internal/risk"
)


// HandleOutcomes returns the latest outcome of every engine.
func HandleOutcomes(hub *events.Hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		snap := hub.Snapshot()
		out := make([]map[string]any, 0, len(snap))
		for _, o := range snap {
			msg, err := EncodeOutcome(o)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			out = append(out, msg.AsMap())
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": out})
	})
}

// HandlePositions returns the active positions of every risk profile.
func HandlePositions(validators []*risk.Validator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		out := make(map[string][]domain.ActivePosition, len(validators))
		for _, v := range validators {
			out[v.Name()] = v.Positions()
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": out})
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
