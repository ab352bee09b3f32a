/*
handlers.go - HTTP handlers for the settlement engine

PURPOSE:
  Exposes the timer engine operations, settlement assembly, the approval/
  payment workflow, and read-only history queries. This layer only parses,
  delegates, and renders; all financial logic lives in timer/ and payroll/.

ERROR MAPPING:
  - missing timer/settlement       -> 404 (the core returns nil, not errors)
  - unknown pay structure / type   -> 400 (caller bug)
  - illegal status transition      -> 409
  - store failures                 -> 500, logged

SEE ALSO:
  - server.go: route wiring
  - scheduler.go: the promotion sweep
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/haulline/settlement-engine/finance"
	"github.com/haulline/settlement-engine/payroll"
	"github.com/haulline/settlement-engine/timer"
)

// Handler carries the engine and stores used by the HTTP surface.
type Handler struct {
	Engine      *timer.Engine
	Timers      timer.Store
	Assembler   *payroll.Assembler
	Settlements payroll.SettlementStore
	Log         *logrus.Logger
}

func NewHandler(engine *timer.Engine, timers timer.Store, assembler *payroll.Assembler, settlements payroll.SettlementStore, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{
		Engine:      engine,
		Timers:      timers,
		Assembler:   assembler,
		Settlements: settlements,
		Log:         log,
	}
}

// =============================================================================
// TIMER HANDLERS
// =============================================================================

// StartTimer handles POST /api/timers.
func (h *Handler) StartTimer(w http.ResponseWriter, r *http.Request) {
	var req startTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.LoadID == "" {
		writeError(w, http.StatusBadRequest, "loadId is required", nil)
		return
	}

	override, err := req.override()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timer config", err)
		return
	}

	id, err := h.Engine.Start(r.Context(), finance.LoadID(req.LoadID), timer.Type(req.Type), override, finance.FacilityID(req.FacilityID))
	if err != nil {
		if errors.Is(err, timer.ErrUnknownTimerType) {
			writeError(w, http.StatusBadRequest, "unknown timer type", err)
			return
		}
		h.Log.WithError(err).WithField("load_id", req.LoadID).Error("start timer failed")
		writeError(w, http.StatusInternalServerError, "failed to start timer", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"timerId": string(id)})
}

// StopTimer handles POST /api/timers/{id}/stop.
func (h *Handler) StopTimer(w http.ResponseWriter, r *http.Request) {
	id := finance.TimerID(chi.URLParam(r, "id"))

	snap, err := h.Engine.Stop(r.Context(), id)
	if err != nil {
		h.Log.WithError(err).WithField("timer_id", id).Error("stop timer failed")
		writeError(w, http.StatusInternalServerError, "failed to stop timer", err)
		return
	}
	if snap == nil {
		// Missing or already finalized. Safe to call twice.
		writeError(w, http.StatusNotFound, "timer not found or already finalized", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(*snap))
}

// WaiveTimer handles POST /api/timers/{id}/waive.
func (h *Handler) WaiveTimer(w http.ResponseWriter, r *http.Request) {
	id := finance.TimerID(chi.URLParam(r, "id"))

	var req waiveTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ok, err := h.Engine.Waive(r.Context(), id, req.WaivedBy, req.Reason)
	if err != nil {
		h.Log.WithError(err).WithField("timer_id", id).Error("waive timer failed")
		writeError(w, http.StatusInternalServerError, "failed to waive timer", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "timer not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timerId": string(id), "waived": true})
}

// GetTimerSnapshot handles GET /api/timers/{id}.
func (h *Handler) GetTimerSnapshot(w http.ResponseWriter, r *http.Request) {
	id := finance.TimerID(chi.URLParam(r, "id"))

	snap, err := h.Engine.Snapshot(r.Context(), id)
	if err != nil {
		h.Log.WithError(err).WithField("timer_id", id).Error("snapshot failed")
		writeError(w, http.StatusInternalServerError, "failed to read timer", err)
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "timer not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(*snap))
}

// LoadActiveSnapshots handles GET /api/loads/{id}/timers/active - the live
// billing display while a load is in transit.
func (h *Handler) LoadActiveSnapshots(w http.ResponseWriter, r *http.Request) {
	loadID := finance.LoadID(chi.URLParam(r, "id"))

	snaps, err := h.Engine.ActiveSnapshots(r.Context(), loadID)
	if err != nil {
		h.Log.WithError(err).WithField("load_id", loadID).Error("active snapshots failed")
		writeError(w, http.StatusInternalServerError, "failed to read timers", err)
		return
	}

	dtos := make([]snapshotDTO, 0, len(snaps))
	for _, s := range snaps {
		dtos = append(dtos, toSnapshotDTO(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"loadId": string(loadID), "timers": dtos})
}

// LoadTimerHistory handles GET /api/loads/{id}/timers - all timers for a
// load regardless of status, for settlement review and audit.
func (h *Handler) LoadTimerHistory(w http.ResponseWriter, r *http.Request) {
	loadID := finance.LoadID(chi.URLParam(r, "id"))

	timers, err := h.Timers.ByLoad(r.Context(), loadID)
	if err != nil {
		h.Log.WithError(err).WithField("load_id", loadID).Error("timer history failed")
		writeError(w, http.StatusInternalServerError, "failed to read timers", err)
		return
	}

	dtos := make([]timerDTO, 0, len(timers))
	for _, t := range timers {
		dtos = append(dtos, toTimerDTO(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"loadId": string(loadID), "timers": dtos})
}

// PromoteTimers handles POST /api/admin/timers/promote - a manual sweep
// trigger for operators; the scheduler runs the same operation on a tick.
func (h *Handler) PromoteTimers(w http.ResponseWriter, r *http.Request) {
	count, err := h.Engine.PromoteFreeTimeTimers(r.Context())
	if err != nil {
		h.Log.WithError(err).Error("manual promotion sweep failed")
		writeError(w, http.StatusInternalServerError, "promotion sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"promoted": count})
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// CreateSettlement handles POST /api/settlements.
func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req createSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	input, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid settlement input", err)
		return
	}

	doc, err := h.Assembler.Assemble(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, payroll.ErrUnknownPayStructure):
			writeError(w, http.StatusBadRequest, "unknown pay structure", err)
		case errors.Is(err, payroll.ErrEmptySettlement):
			writeError(w, http.StatusBadRequest, "settlement has no loads (set allowEmpty to override)", err)
		default:
			h.Log.WithError(err).WithField("driver_id", req.DriverID).Error("assemble settlement failed")
			writeError(w, http.StatusInternalServerError, "failed to assemble settlement", err)
		}
		return
	}

	if err := h.Settlements.Save(r.Context(), *doc); err != nil {
		h.Log.WithError(err).WithField("settlement_id", doc.ID).Error("save settlement failed")
		writeError(w, http.StatusInternalServerError, "failed to save settlement", err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

// GetSettlement handles GET /api/settlements/{id}.
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := h.Settlements.GetSettlement(r.Context(), id)
	if err != nil {
		h.Log.WithError(err).WithField("settlement_id", id).Error("get settlement failed")
		writeError(w, http.StatusInternalServerError, "failed to read settlement", err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "settlement not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ListDriverSettlements handles GET /api/drivers/{id}/settlements.
func (h *Handler) ListDriverSettlements(w http.ResponseWriter, r *http.Request) {
	driverID := finance.DriverID(chi.URLParam(r, "id"))

	docs, err := h.Settlements.ListByDriver(r.Context(), driverID)
	if err != nil {
		h.Log.WithError(err).WithField("driver_id", driverID).Error("list settlements failed")
		writeError(w, http.StatusInternalServerError, "failed to list settlements", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"driverId": string(driverID), "settlements": docs})
}

// statusActions maps workflow routes to their target status.
var statusActions = map[string]payroll.SettlementStatus{
	"submit":  payroll.StatusPendingApproval,
	"approve": payroll.StatusApproved,
	"pay":     payroll.StatusPaid,
	"dispute": payroll.StatusDisputed,
}

// TransitionSettlement handles POST /api/settlements/{id}/{action} for the
// approval/payment workflow.
func (h *Handler) TransitionSettlement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action := chi.URLParam(r, "action")

	target, ok := statusActions[action]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown settlement action", nil)
		return
	}

	doc, err := h.Settlements.GetSettlement(r.Context(), id)
	if err != nil {
		h.Log.WithError(err).WithField("settlement_id", id).Error("get settlement failed")
		writeError(w, http.StatusInternalServerError, "failed to read settlement", err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "settlement not found", nil)
		return
	}
	if !doc.Status.CanTransitionTo(target) {
		writeError(w, http.StatusConflict, "illegal settlement status transition", payroll.ErrIllegalStatusTransition)
		return
	}

	ok, err = h.Settlements.UpdateStatus(r.Context(), id, doc.Status, target)
	if err != nil {
		h.Log.WithError(err).WithField("settlement_id", id).Error("status transition failed")
		writeError(w, http.StatusInternalServerError, "failed to update settlement", err)
		return
	}
	if !ok {
		// A concurrent workflow action won.
		writeError(w, http.StatusConflict, "settlement status changed concurrently", nil)
		return
	}

	h.Log.WithFields(logrus.Fields{
		"settlement_id": id,
		"from":          doc.Status,
		"to":            target,
	}).Info("settlement status updated")
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(target)})
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}
