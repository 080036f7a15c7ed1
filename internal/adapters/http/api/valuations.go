package api

import (
	"net/http"

	"github.com/okian/comparo/internal/domain/model"
)

// ValuationHandler handles valuation requests.
type ValuationHandler struct {
	deps ValuationDependencies
}

// NewValuationHandler creates a new valuation handler.
func NewValuationHandler(deps ValuationDependencies) *ValuationHandler {
	return &ValuationHandler{deps: deps}
}

// HandlePostValuation handles POST /v1/valuations.
func (h *ValuationHandler) HandlePostValuation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_valuation"
	var req model.ValuationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	res, err := h.deps.Valuate(r.Context(), req)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
