package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/models"
	"github.com/ekaya-inc/whereabouts/pkg/services"
)

// SetLocationRequest for PUT /api/users/{uid}/location
type SetLocationRequest struct {
	LocationID string `json:"location_id"`
}

// CurrentLocalityResponse for GET /api/users/{uid}/locality. Locality is null
// when the user is not checked in anywhere.
type CurrentLocalityResponse struct {
	Locality *models.Locality `json:"locality"`
}

// HistoryResponse for GET /api/users/{uid}/history
type HistoryResponse struct {
	Localities []*models.Locality `json:"localities"`
	Total      int                `json:"total"`
}

// LocalityHandler handles check-in, check-out and history endpoints.
type LocalityHandler struct {
	tracker services.LocalityTracker
	logger  *zap.Logger
}

// NewLocalityHandler creates a new locality handler.
func NewLocalityHandler(tracker services.LocalityTracker, logger *zap.Logger) *LocalityHandler {
	return &LocalityHandler{
		tracker: tracker,
		logger:  logger,
	}
}

// RegisterRoutes registers the locality handler's routes on the given mux.
func (h *LocalityHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/devices/{did}/detect", h.Detect)
	mux.HandleFunc("POST /api/devices/{did}/undetect", h.Undetect)
	mux.HandleFunc("PUT /api/users/{uid}/location", h.SetManualLocation)
	mux.HandleFunc("DELETE /api/users/{uid}/location/{lid}", h.UnsetManualLocation)
	mux.HandleFunc("GET /api/users/{uid}/locality", h.GetCurrent)
	mux.HandleFunc("GET /api/users/{uid}/history", h.GetHistory)
}

// Detect handles POST /api/devices/{did}/detect
// The body is a signal reference: {"id": ...} or {"type": ..., "identifier": ...}.
func (h *LocalityHandler) Detect(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := ParseDeviceID(w, r, h.logger)
	if !ok {
		return
	}
	var ref models.SignalRef
	if !decodeBody(w, r, h.logger, &ref) {
		return
	}

	locality, err := h.tracker.DeviceDetect(r.Context(), deviceID, ref)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to record detection", err,
			zap.String("device_id", deviceID),
			zap.Stringer("signal", ref))
		return
	}
	writeData(w, h.logger, http.StatusCreated, locality)
}

// Undetect handles POST /api/devices/{did}/undetect
func (h *LocalityHandler) Undetect(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := ParseDeviceID(w, r, h.logger)
	if !ok {
		return
	}
	var ref models.SignalRef
	if !decodeBody(w, r, h.logger, &ref) {
		return
	}

	closed, err := h.tracker.DeviceUndetect(r.Context(), deviceID, ref)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to record undetection", err,
			zap.String("device_id", deviceID),
			zap.Stringer("signal", ref))
		return
	}
	writeData(w, h.logger, http.StatusOK, changedResponse{Changed: closed})
}

// SetManualLocation handles PUT /api/users/{uid}/location
func (h *LocalityHandler) SetManualLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}
	var req SetLocationRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	locality, err := h.tracker.SetManualLocation(r.Context(), userID, req.LocationID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to set manual location", err,
			zap.String("user_id", userID),
			zap.String("location_id", req.LocationID))
		return
	}
	writeData(w, h.logger, http.StatusCreated, locality)
}

// UnsetManualLocation handles DELETE /api/users/{uid}/location/{lid}
func (h *LocalityHandler) UnsetManualLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}
	locationID, ok := ParseLocationID(w, r, h.logger)
	if !ok {
		return
	}

	closed, err := h.tracker.UnsetManualLocation(r.Context(), userID, locationID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to unset manual location", err,
			zap.String("user_id", userID),
			zap.String("location_id", locationID))
		return
	}
	writeData(w, h.logger, http.StatusOK, changedResponse{Changed: closed})
}

// GetCurrent handles GET /api/users/{uid}/locality
func (h *LocalityHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	locality, err := h.tracker.GetCurrent(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get current locality", err, zap.String("user_id", userID))
		return
	}
	writeData(w, h.logger, http.StatusOK, CurrentLocalityResponse{Locality: locality})
}

// GetHistory handles GET /api/users/{uid}/history
// With start or end set it returns the localities that arrived in that window
// (end defaults to now, start to the beginning of time); otherwise it walks the
// chain up to depth entries (0 walks everything).
func (h *LocalityHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	q := &queryParams{r: r}
	depth := q.intValue("depth", 0)
	limit := q.intValue("limit", services.DefaultHistoryLimit)
	start := q.timeValue("start")
	end := q.timeValue("end")
	if !q.check(w, h.logger) {
		return
	}

	var (
		localities []*models.Locality
		err        error
	)
	if start == nil && end == nil {
		localities, err = h.tracker.GetHistory(r.Context(), userID, depth)
	} else {
		from, to := time.Time{}, time.Now().UTC()
		if start != nil {
			from = *start
		}
		if end != nil {
			to = *end
		}
		localities, err = h.tracker.GetHistoryInRange(r.Context(), userID, from, to, limit)
	}
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get locality history", err, zap.String("user_id", userID))
		return
	}
	writeData(w, h.logger, http.StatusOK, HistoryResponse{Localities: localities, Total: len(localities)})
}
