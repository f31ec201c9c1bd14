package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/tripcart/internal/auth"
	"github.com/dukerupert/tripcart/internal/grocery"
	"github.com/dukerupert/tripcart/internal/model"
	"github.com/dukerupert/tripcart/internal/store"
)

// TripHandler serves read-only trip snapshots over plain HTTP for clients
// that cannot hold a socket open. Routes must sit behind RequireBearer.
type TripHandler struct {
	store  *store.Store
	logger *slog.Logger
}

func NewTripHandler(s *store.Store, logger *slog.Logger) *TripHandler {
	return &TripHandler{store: s, logger: logger}
}

type tripDetail struct {
	Trip      *model.Trip  `json:"trip"`
	Items     []model.Item `json:"items"`
	Total     int          `json:"total"`
	Purchased int          `json:"purchased"`
}

type categoryInfo struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

func (h *TripHandler) ListTrips(w http.ResponseWriter, r *http.Request) {
	scope := h.store.ForUser(auth.UserID(r.Context()))

	trips, err := scope.ListTrips(r.Context())
	if err != nil {
		h.logger.Error("list trips", "user_id", scope.UserID(), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch trips"})
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	scope := h.store.ForUser(auth.UserID(r.Context()))
	id := r.PathValue("id")

	trip, err := scope.GetTrip(r.Context(), id)
	if err != nil {
		h.logger.Error("get trip", "user_id", scope.UserID(), "trip_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load trip"})
		return
	}
	if trip == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "trip not found"})
		return
	}

	items, err := scope.ListItems(r.Context(), trip.ID)
	if err != nil {
		h.logger.Error("list items", "user_id", scope.UserID(), "trip_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load trip"})
		return
	}

	detail := tripDetail{Trip: trip, Items: items, Total: len(items)}
	for _, it := range items {
		if it.Purchased {
			detail.Purchased++
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

// Categories lists the category set in display order.
func (h *TripHandler) Categories(w http.ResponseWriter, r *http.Request) {
	cats := grocery.Categories()
	out := make([]categoryInfo, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryInfo{Name: string(c), Icon: c.Icon()})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
