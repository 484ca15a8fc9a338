package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/models"
	"github.com/ekaya-inc/whereabouts/pkg/services"
)

// KnowsRequest for POST and PUT /api/users/{uid}/knows/{tid}
type KnowsRequest struct {
	Strength int `json:"strength"`
}

// ContactListResponse for GET /api/users/{uid}/knows
type ContactListResponse struct {
	Contacts []*models.Contact `json:"contacts"`
	Total    int               `json:"total"`
}

// SocialHandler handles the knows relationship between users.
type SocialHandler struct {
	social services.SocialGraphService
	logger *zap.Logger
}

// NewSocialHandler creates a new social graph handler.
func NewSocialHandler(social services.SocialGraphService, logger *zap.Logger) *SocialHandler {
	return &SocialHandler{
		social: social,
		logger: logger,
	}
}

// RegisterRoutes registers the social handler's routes on the given mux.
func (h *SocialHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/users/{uid}/knows/{tid}", h.AddKnows)
	mux.HandleFunc("PUT /api/users/{uid}/knows/{tid}", h.UpdateKnows)
	mux.HandleFunc("DELETE /api/users/{uid}/knows/{tid}", h.RemoveKnows)
	mux.HandleFunc("GET /api/users/{uid}/knows", h.GetKnows)
}

func (h *SocialHandler) pair(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	from, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return "", "", false
	}
	to, ok := parseID(w, r, "tid", "invalid_user_id", "Invalid target user ID format", h.logger)
	if !ok {
		return "", "", false
	}
	return from, to, true
}

// AddKnows handles POST /api/users/{uid}/knows/{tid}
func (h *SocialHandler) AddKnows(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.pair(w, r)
	if !ok {
		return
	}
	var req KnowsRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	added, err := h.social.AddKnows(r.Context(), from, to, req.Strength)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to add knows", err,
			zap.String("from_user_id", from),
			zap.String("to_user_id", to))
		return
	}
	writeData(w, h.logger, http.StatusCreated, changedResponse{Changed: added})
}

// UpdateKnows handles PUT /api/users/{uid}/knows/{tid}
func (h *SocialHandler) UpdateKnows(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.pair(w, r)
	if !ok {
		return
	}
	var req KnowsRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	updated, err := h.social.UpdateKnows(r.Context(), from, to, req.Strength)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to update knows", err,
			zap.String("from_user_id", from),
			zap.String("to_user_id", to))
		return
	}
	writeData(w, h.logger, http.StatusOK, changedResponse{Changed: updated})
}

// RemoveKnows handles DELETE /api/users/{uid}/knows/{tid}
func (h *SocialHandler) RemoveKnows(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.pair(w, r)
	if !ok {
		return
	}

	removed, err := h.social.RemoveKnows(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to remove knows", err,
			zap.String("from_user_id", from),
			zap.String("to_user_id", to))
		return
	}
	writeData(w, h.logger, http.StatusOK, changedResponse{Changed: removed})
}

// GetKnows handles GET /api/users/{uid}/knows?min_strength=&direction=&limit=
func (h *SocialHandler) GetKnows(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	q := &queryParams{r: r}
	minStrength := q.intValue("min_strength", models.MinStrength)
	limit := q.intValue("limit", 0)
	if !q.check(w, h.logger) {
		return
	}
	dir, err := models.ParseDirection(q.stringValue("direction"))
	if err != nil {
		writeBadRequest(w, h.logger, "invalid_query_parameter", err.Error())
		return
	}

	contacts, err := h.social.GetKnows(r.Context(), userID, minStrength, dir, limit)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list contacts", err, zap.String("user_id", userID))
		return
	}
	writeData(w, h.logger, http.StatusOK, ContactListResponse{Contacts: contacts, Total: len(contacts)})
}
