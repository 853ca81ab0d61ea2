package controlplane

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLivenessStates(t *testing.T) {
	tests := []struct {
		state  string
		online bool
	}{
		{"running", true},
		{"starting", true},
		{"stopping", false},
		{"offline", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run("state "+tt.state, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				assert.Equal(t, "/api/instances/i-1/state", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"state":"` + tt.state + `"}`))
			}))
			defer srv.Close()

			client := NewHTTPClient(srv.URL, "secret", time.Second)
			online, err := client.CheckLiveness(context.Background(), "i-1")
			require.NoError(t, err)
			assert.Equal(t, tt.online, online)
		})
	}
}

func TestStatusErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/instances/gone/suspend":
			http.Error(w, "no such instance", http.StatusNotFound)
		case "/api/instances/bad/suspend":
			http.Error(w, "invalid ref", http.StatusUnprocessableEntity)
		default:
			http.Error(w, "panel exploded", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "secret", time.Second)

	err := client.Suspend(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsClientFault(err))

	err = client.Suspend(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.True(t, IsClientFault(err))

	err = client.Suspend(context.Background(), "broken")
	require.Error(t, err)
	assert.False(t, IsClientFault(err), "5xx is a server fault and stays retryable")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Contains(t, se.Body, "panel exploded")
}

func TestSuspendResumeDeleteRoutes(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "secret", time.Second)

	require.NoError(t, client.Suspend(context.Background(), "i-1"))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/instances/i-1/suspend", gotPath)

	require.NoError(t, client.Resume(context.Background(), "i-1"))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/instances/i-1/unsuspend", gotPath)

	require.NoError(t, client.Delete(context.Background(), "i-1"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/api/instances/i-1", gotPath)
}

func TestClientFaultHelpersOnPlainErrors(t *testing.T) {
	plain := errors.New("dial tcp: connection refused")
	assert.False(t, IsClientFault(plain))
	assert.False(t, IsNotFound(plain))
	assert.False(t, IsClientFault(nil))
}
