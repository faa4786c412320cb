package handlers

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"lorelink/internal/models"
)

type CounterDriftResponse struct {
	Drift []models.CounterDrift `json:"drift"`
	Count int                   `json:"count"`
}

// RequireAdmin lets through only principals named in Cfg.AdminUserIDs.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		if h.Cfg == nil || !slices.Contains(h.Cfg.AdminUserIDs, p.UserID) {
			writeServiceError(w, r, fmt.Errorf("%w: admin access required", models.ErrPermissionDenied))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetCounterDrift lists posts whose like/comment counters disagree with the ledger.
func (h *Handlers) GetCounterDrift(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(w, r); !ok {
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	drift, err := h.InteractionService.CheckCounters(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, CounterDriftResponse{Drift: drift, Count: len(drift)}, http.StatusOK)
}

func (h *Handlers) RepairCounters(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(w, r); !ok {
		return
	}

	if err := h.InteractionService.RepairCounters(r.Context(), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, MessageResponse{Message: "counters repaired"}, http.StatusOK)
}
