package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadline-ai/switchboard/internal/model"
	"github.com/leadline-ai/switchboard/internal/testutil"
)

func newTestClient(t *testing.T, handler http.Handler, retries int) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "test-key", 5*time.Second, retries, testutil.TestLogger())
}

func TestContactTags(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contacts/c1", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"contact":{"tags":["Buyer-Lead","Warm-Buyer"]}}`))
	}), 0)

	tags, err := client.ContactTags(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Buyer-Lead", "Warm-Buyer"}, tags)
}

func TestApplyActions_PostsBatchAsOneUnit(t *testing.T) {
	var got applyActionsRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contacts/c1/actions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}), 0)

	batch := []model.Action{
		model.RemoveTag("Buyer-Lead"),
		model.AddTag("Needs-Qualifying"),
		model.AddTag("Handoff-Buyer-to-Seller"),
		model.SendMessage("transferring you now"),
	}
	require.NoError(t, client.ApplyActions(context.Background(), "c1", batch))
	assert.Equal(t, batch, got.Actions)
}

func TestApplyActions_EmptyBatchSkipsRequest(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}), 0)

	require.NoError(t, client.ApplyActions(context.Background(), "c1", nil))
	assert.Zero(t, calls.Load())
}

func TestWithRetry_TransientFailuresRetried(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"contact":{"tags":[]}}`))
	}), 3)

	_, err := client.ContactTags(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestWithRetry_PermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}), 3)

	_, err := client.ContactTags(context.Background(), "c1")
	assert.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestWithRetry_ExhaustedRetriesReturnError(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), 2)

	err := client.ApplyActions(context.Background(), "c1", []model.Action{model.AddTag("X")})
	assert.Error(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestNoop(t *testing.T) {
	var n Noop
	tags, err := n.ContactTags(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, tags)
	assert.NoError(t, n.ApplyActions(context.Background(), "c1", []model.Action{model.AddTag("X")}))
}
