package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/comparo/internal/domain/model"
)

// RecencyHandler handles standalone freshness checks.
type RecencyHandler struct {
	deps RecencyDependencies
}

// NewRecencyHandler creates a new recency handler.
func NewRecencyHandler(deps RecencyDependencies) *RecencyHandler {
	return &RecencyHandler{deps: deps}
}

// HandleGet handles GET /v1/recency?date=&warnMonths=.
func (h *RecencyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.recency"
	q := r.URL.Query()

	raw := strings.TrimSpace(q.Get("date"))
	if raw == "" {
		writeError(w, Wrap(op, model.NewValidationError("date", "is required")))
		return
	}
	date, err := parseDate(raw)
	if err != nil {
		writeError(w, Wrap(op, model.NewValidationError("date", "must be an ISO-8601 date")))
		return
	}

	warnMonths := 0
	if s := strings.TrimSpace(q.Get("warnMonths")); s != "" {
		warnMonths, err = strconv.Atoi(s)
		if err != nil || warnMonths < 1 {
			writeError(w, Wrap(op, model.NewValidationError("warnMonths", "must be a positive integer")))
			return
		}
	}

	writeJSON(w, http.StatusOK, h.deps.ValidateCompRecency(date, warnMonths))
}
