// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/comparo/internal/domain/compset"
	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/internal/domain/recency"
	"github.com/okian/comparo/internal/domain/types"
	"github.com/okian/comparo/pkg/logger"
)

// maxBodyBytes bounds request bodies; batches are the largest.
const maxBodyBytes = 8 << 20

// ValuationDependencies runs valuations.
type ValuationDependencies interface {
	Valuate(ctx context.Context, req model.ValuationRequest) (model.ValuationResult, error)
}

// ComparableDependencies reads and imports comparables.
type ComparableDependencies interface {
	QueryComparables(ctx context.Context, filters model.SearchFilters, subject *model.SubjectRef) (types.Page[model.Comparable], error)
	GetComparable(ctx context.Context, id string) (model.Comparable, error)
	ImportRaw(ctx context.Context, body []byte) (model.Comparable, error)
	EnqueueBatch(ctx context.Context, body []byte, origin string) (types.BatchReceipt, error)
}

// RecencyDependencies checks comparable freshness.
type RecencyDependencies interface {
	ValidateCompRecency(date time.Time, warnMonths int) recency.Result
}

// CompSetDependencies manages comp sets.
type CompSetDependencies interface {
	CreateCompSet(ctx context.Context, in compset.Input) (model.CompSet, error)
	GetCompSet(ctx context.Context, id string) (model.CompSet, error)
	UpdateCompSet(ctx context.Context, id string, expectedVersion int, in compset.Input) (model.CompSet, error)
	DeleteCompSet(ctx context.Context, id string, expectedVersion int) error
	ListCompSets(ctx context.Context, client string) ([]model.CompSet, error)
}

// Dependencies required by HTTP handlers.
type Dependencies interface {
	ValuationDependencies
	ComparableDependencies
	RecencyDependencies
	CompSetDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	valuationHandler   *ValuationHandler
	comparablesHandler *ComparablesHandler
	recencyHandler     *RecencyHandler
	compSetsHandler    *CompSetsHandler
	logger             logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		valuationHandler:   NewValuationHandler(deps),
		comparablesHandler: NewComparablesHandler(deps),
		recencyHandler:     NewRecencyHandler(deps),
		compSetsHandler:    NewCompSetsHandler(deps),
		logger:             logger.Get().Named("http"),
	}
}

// Register attaches all HTTP routes to r. The middleware stack is scoped to
// a group so r may already carry other routes.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID, LoggerMiddleware(s.logger), middleware.Recoverer, MetricsMiddleware)

		r.Get("/healthz", s.healthHandler.HandleHealth)
		r.Get("/stats", s.statsHandler.HandleStats)

		r.Route("/v1", func(r chi.Router) {
			r.Post("/valuations", s.valuationHandler.HandlePostValuation)

			r.Get("/comparables", s.comparablesHandler.HandleList)
			r.Post("/comparables", s.comparablesHandler.HandleImport)
			r.Post("/comparables:batch", s.comparablesHandler.HandleBatch)
			r.Get("/comparables/{id}", s.comparablesHandler.HandleGet)

			r.Get("/recency", s.recencyHandler.HandleGet)

			r.Post("/compsets", s.compSetsHandler.HandleCreate)
			r.Get("/compsets", s.compSetsHandler.HandleList)
			r.Get("/compsets/{id}", s.compSetsHandler.HandleGet)
			r.Put("/compsets/{id}", s.compSetsHandler.HandleUpdate)
			r.Delete("/compsets/{id}", s.compSetsHandler.HandleDelete)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status and writes the error body.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError && err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Details: violations(err)})
}

// readBody reads a bounded request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrPayloadTooLarge
		}
		return nil, WrapKind("read body", ErrBadRequest, err)
	}
	return body, nil
}

// decodeJSON decodes a bounded body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrPayloadTooLarge
		}
		return model.NewValidationError("body", err.Error())
	}
	return nil
}
