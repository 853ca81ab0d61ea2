package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"panelbill/internal/ledger"
	"panelbill/internal/rewards"
	"panelbill/internal/scheduler"
)

// CycleRunner triggers one billing cycle out of band, e.g. after a policy
// change.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Reconciler checks the ledger invariant for one account.
type Reconciler interface {
	Reconcile(ctx context.Context, accountID string) (int64, error)
}

// Pinger reports whether the datastore is reachable, for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AFKSessions is the idle-reward surface the panel frontend proxies to.
type AFKSessions interface {
	Start(accountID string) error
	Heartbeat(ctx context.Context, accountID string) (int64, error)
	Stop(accountID string) (int64, error)
}

type Handler struct {
	cycles     CycleRunner
	reconciler Reconciler
	db         Pinger
	afk        AFKSessions
}

func NewHandler(cycles CycleRunner, reconciler Reconciler, db Pinger, afk AFKSessions) *Handler {
	return &Handler{cycles: cycles, reconciler: reconciler, db: db, afk: afk}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)
	mux.HandleFunc("POST /ops/cycle", h.TriggerCycle)
	mux.HandleFunc("GET /ops/reconcile", h.Reconcile)
	mux.HandleFunc("POST /afk/start", h.AFKStart)
	mux.HandleFunc("POST /afk/heartbeat", h.AFKHeartbeat)
	mux.HandleFunc("POST /afk/stop", h.AFKStop)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	err := h.cycles.RunCycle(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrCycleInProgress):
		h.respondError(w, http.StatusConflict, "cycle_in_progress")
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
	}
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_account_id")
		return
	}
	drift, err := h.reconciler.Reconcile(r.Context(), accountID)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		h.respondError(w, http.StatusNotFound, "account_not_found")
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		h.respondJSON(w, http.StatusOK, map[string]any{"account_id": accountID, "drift": drift})
	}
}

func (h *Handler) AFKStart(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_account_id")
		return
	}
	switch err := h.afk.Start(accountID); {
	case errors.Is(err, rewards.ErrSessionActive):
		h.respondError(w, http.StatusConflict, "session_active")
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "started"})
	}
}

func (h *Handler) AFKHeartbeat(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_account_id")
		return
	}
	earned, err := h.afk.Heartbeat(r.Context(), accountID)
	switch {
	case errors.Is(err, rewards.ErrNoSession):
		h.respondError(w, http.StatusNotFound, "no_session")
	case errors.Is(err, rewards.ErrHeartbeatRate):
		h.respondError(w, http.StatusTooManyRequests, "heartbeat_too_soon")
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		h.respondJSON(w, http.StatusOK, map[string]int64{"earned": earned})
	}
}

func (h *Handler) AFKStop(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_account_id")
		return
	}
	total, err := h.afk.Stop(accountID)
	switch {
	case errors.Is(err, rewards.ErrNoSession):
		h.respondError(w, http.StatusNotFound, "no_session")
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		h.respondJSON(w, http.StatusOK, map[string]int64{"total_earned": total})
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
