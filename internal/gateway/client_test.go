package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBudget() RetryBudget {
	return RetryBudget{MaxAttempts: 3, Backoff: time.Millisecond}
}

func TestClientBackup(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/backup", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req struct {
			Target string `json:"target"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "zwave", req.Target)

		_ = json.NewEncoder(w).Encode(map[string]string{"backup_ref": "zwave@snap-7"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sekrit", time.Second, testBudget())
	ref, err := c.Backup(context.Background(), "zwave")
	require.NoError(t, err)
	assert.Equal(t, "zwave@snap-7", ref)
	assert.Equal(t, "Bearer sekrit", gotAuth)
}

func TestClientBackupRejectsEmptyRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, testBudget())
	_, err := c.Backup(context.Background(), "zwave")
	require.Error(t, err)

	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.Contains(t, err.Error(), "empty backup_ref")
}

func TestClientRetriesWithinBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, testBudget())
	require.NoError(t, c.Apply(context.Background(), "restart_container", "recorder", nil))
	assert.EqualValues(t, 3, calls.Load())
}

func TestClientExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, testBudget())
	err := c.Apply(context.Background(), "restart_container", "recorder", nil)
	require.Error(t, err)
	assert.EqualValues(t, 3, calls.Load())

	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.Contains(t, err.Error(), "503")
}

func TestClientTimeout(t *testing.T) {
	// The handler must drain the body before parking, or the server never
	// notices the client going away and Close blocks the suite.
	unblock := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-unblock:
		}
	}))
	defer srv.Close()
	defer close(unblock)

	c := NewClient(srv.URL, "", time.Second, RetryBudget{MaxAttempts: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Apply(ctx, "restart_container", "recorder", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClientVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Target string   `json:"target"`
			Tests  []string `json:"tests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"running", "healthy"}, req.Tests)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []CheckResult{
				{Name: "running", Passed: true},
				{Name: "healthy", Passed: false, Detail: "probe failing"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, testBudget())
	results, err := c.Verify(context.Background(), "recorder", []string{"running", "healthy"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)
}
