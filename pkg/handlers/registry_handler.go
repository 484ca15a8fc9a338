package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/models"
	"github.com/ekaya-inc/whereabouts/pkg/services"
)

// ============================================================================
// Request Types
// ============================================================================

// CreateUserRequest for POST /api/users
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// CreateDeviceRequest for POST /api/devices
type CreateDeviceRequest struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name,omitempty"`
	Model    string `json:"model,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// CreateLocationRequest for POST /api/locations
type CreateLocationRequest struct {
	Description string              `json:"description"`
	Address     string              `json:"address,omitempty"`
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	Type        string              `json:"type,omitempty"`
}

// CreateSignalRequest for POST /api/signals. Kind may be omitted and is then
// derived from Type.
type CreateSignalRequest struct {
	Kind        models.SignalKind `json:"kind,omitempty"`
	Type        models.SignalType `json:"type"`
	Identifier  string            `json:"identifier"`
	Description string            `json:"description,omitempty"`
	LocationID  string            `json:"location_id"`
}

// MoveSignalRequest for PUT /api/signals/{sid}/location
type MoveSignalRequest struct {
	LocationID string `json:"location_id"`
}

// DeviceListResponse for GET /api/users/{uid}/devices
type DeviceListResponse struct {
	Devices []*models.Device `json:"devices"`
	Total   int              `json:"total"`
}

// ============================================================================
// Handler
// ============================================================================

// RegistryHandler exposes creation and lookup of users, devices, locations and signals.
type RegistryHandler struct {
	registry services.RegistryService
	logger   *zap.Logger
}

// NewRegistryHandler creates a new registry handler.
func NewRegistryHandler(registry services.RegistryService, logger *zap.Logger) *RegistryHandler {
	return &RegistryHandler{
		registry: registry,
		logger:   logger,
	}
}

// RegisterRoutes registers the registry handler's routes on the given mux.
func (h *RegistryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/users", h.CreateUser)
	mux.HandleFunc("GET /api/users/{uid}", h.GetUser)
	mux.HandleFunc("POST /api/devices", h.CreateDevice)
	mux.HandleFunc("GET /api/devices/{did}", h.GetDevice)
	mux.HandleFunc("GET /api/users/{uid}/devices", h.ListDevices)
	mux.HandleFunc("POST /api/locations", h.CreateLocation)
	mux.HandleFunc("GET /api/locations/{lid}", h.GetLocation)
	mux.HandleFunc("POST /api/signals", h.CreateSignal)
	mux.HandleFunc("GET /api/signals/{sid}", h.GetSignal)
	mux.HandleFunc("PUT /api/signals/{sid}/location", h.MoveSignal)
}

// CreateUser handles POST /api/users
func (h *RegistryHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	user, err := h.registry.CreateUser(r.Context(), &models.User{Name: req.Name, Email: req.Email})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to create user", err)
		return
	}
	writeData(w, h.logger, http.StatusCreated, user)
}

// GetUser handles GET /api/users/{uid}
func (h *RegistryHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.registry.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get user", err, zap.String("user_id", userID))
		return
	}
	writeData(w, h.logger, http.StatusOK, user)
}

// CreateDevice handles POST /api/devices
func (h *RegistryHandler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req CreateDeviceRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	device, err := h.registry.CreateDevice(r.Context(), &models.Device{
		UserID:   req.UserID,
		Name:     req.Name,
		Model:    req.Model,
		Platform: req.Platform,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to create device", err, zap.String("user_id", req.UserID))
		return
	}
	writeData(w, h.logger, http.StatusCreated, device)
}

// GetDevice handles GET /api/devices/{did}
func (h *RegistryHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := ParseDeviceID(w, r, h.logger)
	if !ok {
		return
	}

	device, err := h.registry.GetDevice(r.Context(), deviceID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get device", err, zap.String("device_id", deviceID))
		return
	}
	writeData(w, h.logger, http.StatusOK, device)
}

// ListDevices handles GET /api/users/{uid}/devices
func (h *RegistryHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	devices, err := h.registry.ListDevices(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list devices", err, zap.String("user_id", userID))
		return
	}
	writeData(w, h.logger, http.StatusOK, DeviceListResponse{Devices: devices, Total: len(devices)})
}

// CreateLocation handles POST /api/locations
func (h *RegistryHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req CreateLocationRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	location, err := h.registry.CreateLocation(r.Context(), &models.Location{
		Description: req.Description,
		Address:     req.Address,
		Coordinates: req.Coordinates,
		Type:        req.Type,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to create location", err)
		return
	}
	writeData(w, h.logger, http.StatusCreated, location)
}

// GetLocation handles GET /api/locations/{lid}
func (h *RegistryHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	locationID, ok := ParseLocationID(w, r, h.logger)
	if !ok {
		return
	}

	location, err := h.registry.GetLocation(r.Context(), locationID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get location", err, zap.String("location_id", locationID))
		return
	}
	writeData(w, h.logger, http.StatusOK, location)
}

// CreateSignal handles POST /api/signals
func (h *RegistryHandler) CreateSignal(w http.ResponseWriter, r *http.Request) {
	var req CreateSignalRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	signal, err := h.registry.CreateSignal(r.Context(), &models.Signal{
		Kind:        req.Kind,
		Type:        req.Type,
		Identifier:  req.Identifier,
		Description: req.Description,
		LocationID:  req.LocationID,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to create signal", err,
			zap.String("type", req.Type.String()),
			zap.String("location_id", req.LocationID))
		return
	}
	writeData(w, h.logger, http.StatusCreated, signal)
}

// GetSignal handles GET /api/signals/{sid}
func (h *RegistryHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	signalID, ok := ParseSignalID(w, r, h.logger)
	if !ok {
		return
	}

	signal, err := h.registry.GetSignal(r.Context(), signalID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get signal", err, zap.String("signal_id", signalID))
		return
	}
	writeData(w, h.logger, http.StatusOK, signal)
}

// MoveSignal handles PUT /api/signals/{sid}/location
func (h *RegistryHandler) MoveSignal(w http.ResponseWriter, r *http.Request) {
	signalID, ok := ParseSignalID(w, r, h.logger)
	if !ok {
		return
	}
	var req MoveSignalRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	signal, err := h.registry.MoveSignal(r.Context(), signalID, req.LocationID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to move signal", err,
			zap.String("signal_id", signalID),
			zap.String("location_id", req.LocationID))
		return
	}
	writeData(w, h.logger, http.StatusOK, signal)
}
