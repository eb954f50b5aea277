/*
handlers.go - HTTP API handlers for payroll cycle administration

PURPOSE:
  Exposes payroll cycle configs and their generated periods via REST API.
  Handles HTTP request/response, JSON serialization and validation, and
  delegates date math to the payroll package and generation to triggers.

ENDPOINTS:
  Cycles:
    GET    /api/cycles                  List all configs
    POST   /api/cycles                  Create config (emits trigger)
    GET    /api/cycles/{id}             Get config
    PUT    /api/cycles/{id}             Edit config (emits trigger)
    GET    /api/cycles/{id}/periods     Generated periods
    GET    /api/cycles/{id}/preview     Upcoming periods, nothing stored
    POST   /api/cycles/{id}/generate    Re-trigger generation

  Admin:
    POST   /api/admin/catch-up          Emit triggers for every due config

REQUEST FLOW:
  1. Decode JSON body
  2. Validate tags (go-playground/validator), then payroll.CycleConfig.Validate
  3. Persist through payroll.Store
  4. Emit a trigger; generation happens asynchronously
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Config not found
  - 409: Conflict (stale version, duplicate id)
  - 503: Trigger queue unavailable
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Cron-driven catch-up sweep
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/trigger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	Store   payroll.Store
	Emitter trigger.Emitter
	Clock   payroll.Clock
	Logger  logrus.FieldLogger

	validate *validator.Validate
}

func NewHandler(store payroll.Store, emitter trigger.Emitter, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		Store:    store,
		Emitter:  emitter,
		Clock:    payroll.SystemClock{},
		Logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// CYCLE HANDLERS
// =============================================================================

// ListCycles returns all payroll cycle configs.
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	configs, err := h.Store.ListConfigs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list cycles", err)
		return
	}

	result := make([]CycleDTO, 0, len(configs))
	for _, c := range configs {
		result = append(result, toCycleDTO(c))
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateCycle stores a new config and triggers generation for it.
func (h *Handler) CreateCycle(w http.ResponseWriter, r *http.Request) {
	var req CreateCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	cfg := payroll.CycleConfig{
		ID:    payroll.ConfigID(req.ID),
		Name:  req.Name,
		Cycle: payroll.CycleType(req.CycleType),
	}
	if cfg.ID == "" {
		cfg.ID = payroll.ConfigID(uuid.NewString())
	}
	cfg.CreatedAt = time.Now().UTC()
	cfg.UpdatedAt = cfg.CreatedAt

	var err error
	if cfg.Current, err = req.Current.toState(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid current period", err)
		return
	}
	if req.SecondHalf != nil {
		second, err := req.SecondHalf.toState()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid second half", err)
			return
		}
		cfg.SecondHalf = &second
	}
	if cfg.Cycle == payroll.CycleSemiMonthly && cfg.SecondHalf == nil {
		writeError(w, http.StatusBadRequest, "semi-monthly cycles require second_half", nil)
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid cycle", err)
		return
	}

	if err := h.Store.CreateConfig(r.Context(), cfg); err != nil {
		writeStoreError(w, "failed to create cycle", err)
		return
	}

	created, err := h.Store.GetConfig(r.Context(), cfg.ID)
	if err != nil {
		writeStoreError(w, "failed to load created cycle", err)
		return
	}

	h.emit(r.Context(), cfg.ID)
	writeJSON(w, http.StatusCreated, toCycleDTO(*created))
}

// GetCycle returns a single config.
func (h *Handler) GetCycle(w http.ResponseWriter, r *http.Request) {
	id := payroll.ConfigID(chi.URLParam(r, "id"))

	cfg, err := h.Store.GetConfig(r.Context(), id)
	if err != nil {
		writeStoreError(w, "failed to get cycle", err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(*cfg))
}

// UpdateCycle edits a config's name or period state. The request carries the
// version it was based on; a stale version yields 409.
func (h *Handler) UpdateCycle(w http.ResponseWriter, r *http.Request) {
	id := payroll.ConfigID(chi.URLParam(r, "id"))

	var req UpdateCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	cfg, err := h.Store.GetConfig(r.Context(), id)
	if err != nil {
		writeStoreError(w, "failed to get cycle", err)
		return
	}

	next := cfg.Clone()
	next.UpdatedAt = time.Now().UTC()
	if req.Name != nil {
		next.Name = *req.Name
	}
	if req.Current != nil {
		if next.Current, err = req.Current.toState(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid current period", err)
			return
		}
	}
	if req.SecondHalf != nil {
		second, err := req.SecondHalf.toState()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid second half", err)
			return
		}
		next.SecondHalf = &second
	}
	if err := next.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid cycle", err)
		return
	}

	if err := h.Store.UpdateConfig(r.Context(), next, req.Version); err != nil {
		writeStoreError(w, "failed to update cycle", err)
		return
	}

	updated, err := h.Store.GetConfig(r.Context(), id)
	if err != nil {
		writeStoreError(w, "failed to load updated cycle", err)
		return
	}

	h.emit(r.Context(), id)
	writeJSON(w, http.StatusOK, toCycleDTO(*updated))
}

// ListPeriods returns the periods generated for a config, oldest first.
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	id := payroll.ConfigID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetConfig(r.Context(), id); err != nil {
		writeStoreError(w, "failed to get cycle", err)
		return
	}

	periods, err := h.Store.ListPeriods(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list periods", err)
		return
	}

	result := make([]PeriodDTO, 0, len(periods))
	for _, p := range periods {
		result = append(result, toPeriodDTO(p))
	}
	writeJSON(w, http.StatusOK, result)
}

// PreviewCycle projects the next periods without persisting anything.
func (h *Handler) PreviewCycle(w http.ResponseWriter, r *http.Request) {
	id := payroll.ConfigID(chi.URLParam(r, "id"))

	count := 6
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > payroll.MaxPreviewPeriods {
			writeError(w, http.StatusBadRequest, "count must be between 1 and "+strconv.Itoa(payroll.MaxPreviewPeriods), err)
			return
		}
		count = n
	}

	cfg, err := h.Store.GetConfig(r.Context(), id)
	if err != nil {
		writeStoreError(w, "failed to get cycle", err)
		return
	}

	states, err := payroll.Preview(*cfg, count)
	if err != nil {
		writeStoreError(w, "failed to preview cycle", err)
		return
	}

	result := PreviewDTO{ConfigID: string(id), Periods: make([]PeriodStateDTO, 0, len(states))}
	for _, s := range states {
		result.Periods = append(result.Periods, toPeriodStateDTO(s))
	}
	writeJSON(w, http.StatusOK, result)
}

// GenerateCycle re-triggers generation for one config.
func (h *Handler) GenerateCycle(w http.ResponseWriter, r *http.Request) {
	id := payroll.ConfigID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetConfig(r.Context(), id); err != nil {
		writeStoreError(w, "failed to get cycle", err)
		return
	}

	if err := h.Emitter.Emit(r.Context(), trigger.Event{ConfigID: id}); err != nil {
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue generation", err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedDTO{Status: "queued", ConfigID: string(id)})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerCatchUp emits a trigger for every config whose current period has ended.
func (h *Handler) TriggerCatchUp(w http.ResponseWriter, r *http.Request) {
	emitted, err := EmitDue(r.Context(), h.Store, h.Emitter, h.clock().Today(), h.Logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "catch-up failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedDTO{Status: "queued", Emitted: emitted})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// emit triggers generation after a write. The write already succeeded, so a
// failed emit is logged and left to the catch-up sweep.
func (h *Handler) emit(ctx context.Context, id payroll.ConfigID) {
	if h.Emitter == nil {
		return
	}
	if err := h.Emitter.Emit(ctx, trigger.Event{ConfigID: id}); err != nil {
		h.Logger.WithField("config_id", id).WithError(err).Warn("failed to emit generation trigger")
	}
}

func (h *Handler) clock() payroll.Clock {
	if h.Clock == nil {
		return payroll.SystemClock{}
	}
	return h.Clock
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeStoreError maps engine and store errors to HTTP status codes.
func writeStoreError(w http.ResponseWriter, message string, err error) {
	var verrs validator.ValidationErrors
	switch {
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, "cycle not found", err)
	case payroll.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case payroll.IsClientError(err), errors.As(err, &verrs):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
