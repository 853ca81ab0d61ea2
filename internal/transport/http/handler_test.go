package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelbill/internal/ledger"
	"panelbill/internal/rewards"
	"panelbill/internal/scheduler"
)

type fakeCycles struct{ err error }

func (f *fakeCycles) RunCycle(context.Context) error { return f.err }

type fakeReconciler struct {
	drift int64
	err   error
}

func (f *fakeReconciler) Reconcile(context.Context, string) (int64, error) {
	return f.drift, f.err
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type fakeAFK struct {
	startErr     error
	heartbeatErr error
	stopErr      error
	earned       int64
	total        int64
}

func (f *fakeAFK) Start(string) error { return f.startErr }

func (f *fakeAFK) Heartbeat(context.Context, string) (int64, error) {
	return f.earned, f.heartbeatErr
}

func (f *fakeAFK) Stop(string) (int64, error) { return f.total, f.stopErr }

type handlerEnv struct {
	cycles     *fakeCycles
	reconciler *fakeReconciler
	pinger     *fakePinger
	afk        *fakeAFK
	mux        *http.ServeMux
}

func newHandlerEnv() *handlerEnv {
	e := &handlerEnv{
		cycles:     &fakeCycles{},
		reconciler: &fakeReconciler{},
		pinger:     &fakePinger{},
		afk:        &fakeAFK{},
	}
	e.mux = http.NewServeMux()
	NewHandler(e.cycles, e.reconciler, e.pinger, e.afk).Register(e.mux)
	return e
}

func (e *handlerEnv) request(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	e := newHandlerEnv()
	rec := e.request(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyReflectsDatabase(t *testing.T) {
	e := newHandlerEnv()
	assert.Equal(t, http.StatusOK, e.request(t, http.MethodGet, "/readyz").Code)

	e.pinger.err = errors.New("connection refused")
	assert.Equal(t, http.StatusServiceUnavailable, e.request(t, http.MethodGet, "/readyz").Code)
}

func TestTriggerCycle(t *testing.T) {
	e := newHandlerEnv()
	assert.Equal(t, http.StatusOK, e.request(t, http.MethodPost, "/ops/cycle").Code)

	e.cycles.err = scheduler.ErrCycleInProgress
	assert.Equal(t, http.StatusConflict, e.request(t, http.MethodPost, "/ops/cycle").Code)

	e.cycles.err = errors.New("database unreachable")
	assert.Equal(t, http.StatusInternalServerError, e.request(t, http.MethodPost, "/ops/cycle").Code)
}

func TestReconcileEndpoint(t *testing.T) {
	e := newHandlerEnv()
	e.reconciler.drift = -3

	rec := e.request(t, http.MethodGet, "/ops/reconcile?account_id=acc1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "acc1", body["account_id"])
	assert.Equal(t, float64(-3), body["drift"])

	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodGet, "/ops/reconcile").Code)

	e.reconciler.err = ledger.ErrAccountNotFound
	assert.Equal(t, http.StatusNotFound, e.request(t, http.MethodGet, "/ops/reconcile?account_id=ghost").Code)
}

func TestAFKEndpoints(t *testing.T) {
	e := newHandlerEnv()

	assert.Equal(t, http.StatusOK, e.request(t, http.MethodPost, "/afk/start?account_id=acc1").Code)
	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodPost, "/afk/start").Code)

	e.afk.startErr = rewards.ErrSessionActive
	assert.Equal(t, http.StatusConflict, e.request(t, http.MethodPost, "/afk/start?account_id=acc1").Code)

	e.afk.earned = 2
	rec := e.request(t, http.MethodPost, "/afk/heartbeat?account_id=acc1")
	require.Equal(t, http.StatusOK, rec.Code)
	var hb map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hb))
	assert.Equal(t, int64(2), hb["earned"])

	e.afk.heartbeatErr = rewards.ErrHeartbeatRate
	assert.Equal(t, http.StatusTooManyRequests, e.request(t, http.MethodPost, "/afk/heartbeat?account_id=acc1").Code)

	e.afk.heartbeatErr = rewards.ErrNoSession
	assert.Equal(t, http.StatusNotFound, e.request(t, http.MethodPost, "/afk/heartbeat?account_id=acc1").Code)

	e.afk.total = 10
	rec = e.request(t, http.MethodPost, "/afk/stop?account_id=acc1")
	require.Equal(t, http.StatusOK, rec.Code)
	var stop map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stop))
	assert.Equal(t, int64(10), stop["total_earned"])

	e.afk.stopErr = rewards.ErrNoSession
	assert.Equal(t, http.StatusNotFound, e.request(t, http.MethodPost, "/afk/stop?account_id=acc1").Code)
}
