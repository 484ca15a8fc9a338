package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/models"
	"github.com/ekaya-inc/whereabouts/pkg/services"
)

// ProximityQueryResponse for POST /api/query
type ProximityQueryResponse struct {
	Type       models.QueryType   `json:"type"`
	Strategy   string             `json:"strategy"`
	Localities []*models.Locality `json:"localities"`
	Total      int                `json:"total"`
}

// QueryHandler answers proximity queries.
type QueryHandler struct {
	query  services.ProximityQueryService
	logger *zap.Logger
}

// NewQueryHandler creates a new proximity query handler.
func NewQueryHandler(query services.ProximityQueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		query:  query,
		logger: logger,
	}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.Resolve)
}

// Resolve handles POST /api/query
// The body is a ProximityQuery; which optional fields are present decides the strategy.
func (h *QueryHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var q models.ProximityQuery
	if !decodeBody(w, r, h.logger, &q) {
		return
	}

	result, err := h.query.Resolve(r.Context(), &q)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to resolve proximity query", err,
			zap.String("user_id", q.UserID),
			zap.Stringer("type", h.query.Classify(&q)))
		return
	}

	writeData(w, h.logger, http.StatusOK, ProximityQueryResponse{
		Type:       result.Type,
		Strategy:   result.Strategy,
		Localities: result.Localities,
		Total:      len(result.Localities),
	})
}
