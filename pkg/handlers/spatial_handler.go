package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/models"
	"github.com/ekaya-inc/whereabouts/pkg/services"
)

// NearbyRequest for POST and PUT /api/locations/{lid}/nearby/{oid}
type NearbyRequest struct {
	Distance float64 `json:"distance"`
}

// LocationListResponse for the within and containing listings.
type LocationListResponse struct {
	Locations []*models.Location `json:"locations"`
	Total     int                `json:"total"`
}

// NearbyListResponse for GET /api/locations/{lid}/nearby
type NearbyListResponse struct {
	Nearby []*models.Nearby `json:"nearby"`
	Total  int              `json:"total"`
}

// SpatialHandler handles containment and adjacency between locations.
type SpatialHandler struct {
	spatial services.SpatialGraphService
	logger  *zap.Logger
}

// NewSpatialHandler creates a new spatial graph handler.
func NewSpatialHandler(spatial services.SpatialGraphService, logger *zap.Logger) *SpatialHandler {
	return &SpatialHandler{
		spatial: spatial,
		logger:  logger,
	}
}

// RegisterRoutes registers the spatial handler's routes on the given mux.
func (h *SpatialHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/locations/{lid}/within/{oid}", h.AddWithin)
	mux.HandleFunc("DELETE /api/locations/{lid}/within/{oid}", h.RemoveWithin)
	mux.HandleFunc("GET /api/locations/{lid}/within", h.GetWithin)
	mux.HandleFunc("GET /api/locations/{lid}/containing", h.GetContaining)
	mux.HandleFunc("POST /api/locations/{lid}/nearby/{oid}", h.AddNearby)
	mux.HandleFunc("PUT /api/locations/{lid}/nearby/{oid}", h.UpdateNearby)
	mux.HandleFunc("DELETE /api/locations/{lid}/nearby/{oid}", h.RemoveNearby)
	mux.HandleFunc("GET /api/locations/{lid}/nearby", h.GetNearby)
}

func (h *SpatialHandler) pair(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	a, ok := ParseLocationID(w, r, h.logger)
	if !ok {
		return "", "", false
	}
	b, ok := parseID(w, r, "oid", "invalid_location_id", "Invalid other location ID format", h.logger)
	if !ok {
		return "", "", false
	}
	return a, b, true
}

func pairFields(a, b string) []zap.Field {
	return []zap.Field{zap.String("location_id", a), zap.String("other_location_id", b)}
}

// AddWithin handles POST /api/locations/{lid}/within/{oid}, placing lid inside oid.
func (h *SpatialHandler) AddWithin(w http.ResponseWriter, r *http.Request) {
	inner, outer, ok := h.pair(w, r)
	if !ok {
		return
	}

	added, err := h.spatial.AddWithin(r.Context(), inner, outer)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to add within", err, pairFields(inner, outer)...)
		return
	}
	writeData(w, h.logger, http.StatusCreated, changedResponse{Changed: added})
}

// RemoveWithin handles DELETE /api/locations/{lid}/within/{oid}
func (h *SpatialHandler) RemoveWithin(w http.ResponseWriter, r *http.Request) {
	inner, outer, ok := h.pair(w, r)
	if !ok {
		return
	}

	removed, err := h.spatial.RemoveWithin(r.Context(), inner, outer)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to remove within", err, pairFields(inner, outer)...)
		return
	}
	writeData(w, h.logger, http.StatusOK, changedResponse{Changed: removed})
}

// GetWithin handles GET /api/locations/{lid}/within, listing the locations inside lid.
func (h *SpatialHandler) GetWithin(w http.ResponseWriter, r *http.Request) {
	h.listLocations(w, r, "Failed to list contained locations", h.spatial.GetWithin)
}

// GetContaining handles GET /api/locations/{lid}/containing, listing the locations lid is inside.
func (h *SpatialHandler) GetContaining(w http.ResponseWriter, r *http.Request) {
	h.listLocations(w, r, "Failed to list containing locations", h.spatial.GetContaining)
}

func (h *SpatialHandler) listLocations(
	w http.ResponseWriter,
	r *http.Request,
	failMsg string,
	list func(ctx context.Context, locationID string) ([]*models.Location, error),
) {
	locationID, ok := ParseLocationID(w, r, h.logger)
	if !ok {
		return
	}

	locations, err := list(r.Context(), locationID)
	if err != nil {
		writeServiceError(w, h.logger, failMsg, err, zap.String("location_id", locationID))
		return
	}
	writeData(w, h.logger, http.StatusOK, LocationListResponse{Locations: locations, Total: len(locations)})
}

// AddNearby handles POST /api/locations/{lid}/nearby/{oid}
func (h *SpatialHandler) AddNearby(w http.ResponseWriter, r *http.Request) {
	a, b, ok := h.pair(w, r)
	if !ok {
		return
	}
	var req NearbyRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	added, err := h.spatial.AddNearby(r.Context(), a, b, req.Distance)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to add nearby", err, pairFields(a, b)...)
		return
	}
	writeData(w, h.logger, http.StatusCreated, changedResponse{Changed: added})
}

// UpdateNearby handles PUT /api/locations/{lid}/nearby/{oid}
func (h *SpatialHandler) UpdateNearby(w http.ResponseWriter, r *http.Request) {
	a, b, ok := h.pair(w, r)
	if !ok {
		return
	}
	var req NearbyRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	updated, err := h.spatial.UpdateNearby(r.Context(), a, b, req.Distance)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to update nearby", err, pairFields(a, b)...)
		return
	}
	writeData(w, h.logger, http.StatusOK, changedResponse{Changed: updated})
}

// RemoveNearby handles DELETE /api/locations/{lid}/nearby/{oid}
func (h *SpatialHandler) RemoveNearby(w http.ResponseWriter, r *http.Request) {
	a, b, ok := h.pair(w, r)
	if !ok {
		return
	}

	removed, err := h.spatial.RemoveNearby(r.Context(), a, b)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to remove nearby", err, pairFields(a, b)...)
		return
	}
	writeData(w, h.logger, http.StatusOK, changedResponse{Changed: removed})
}

// GetNearby handles GET /api/locations/{lid}/nearby?max_distance=&limit=
// Without max_distance every adjacent location is returned.
func (h *SpatialHandler) GetNearby(w http.ResponseWriter, r *http.Request) {
	locationID, ok := ParseLocationID(w, r, h.logger)
	if !ok {
		return
	}

	q := &queryParams{r: r}
	maxDistance := q.floatValue("max_distance", -1)
	limit := q.intValue("limit", 0)
	if !q.check(w, h.logger) {
		return
	}

	nearby, err := h.spatial.GetNearby(r.Context(), locationID, maxDistance, limit)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list nearby locations", err, zap.String("location_id", locationID))
		return
	}
	writeData(w, h.logger, http.StatusOK, NearbyListResponse{Nearby: nearby, Total: len(nearby)})
}
