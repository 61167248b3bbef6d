package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkrelay/internal/domain"
	"linkrelay/internal/queue"
	"linkrelay/internal/storage"
)

// stubIngestor lets tests dictate the flush outcome.
type stubIngestor struct {
	accept bool
	calls  int
}

func (s *stubIngestor) Deliver(ctx context.Context, share domain.QueuedShare) (bool, error) {
	s.calls++
	if s.accept {
		return true, nil
	}
	return false, fmt.Errorf("ingestion endpoint returned 503 Service Unavailable")
}

func setupServer(t *testing.T) (*httptest.Server, *queue.Store, *stubIngestor) {
	t.Helper()

	testLogger := logrus.New()
	testLogger.SetLevel(logrus.ErrorLevel)

	q := queue.NewStore(storage.NewMemoryStore(), testLogger)
	f := queue.NewFlusher(q, testLogger)
	ing := &stubIngestor{accept: true}

	srv := NewServer("127.0.0.1:0", q, f, ing, testLogger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return ts, q, ing
}

func postShare(t *testing.T, ts *httptest.Server, req domain.ShareRequest) domain.QueuedShare {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/shares", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var share domain.QueuedShare
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&share))
	return share
}

func doRequest(t *testing.T, method, url string, body []byte) *http.Response {
	t.Helper()

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, url, bytes.NewReader(body))
	} else {
		req, err = http.NewRequest(method, url, nil)
	}
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestServer_EnqueueAndList(t *testing.T) {
	ts, _, _ := setupServer(t)

	share := postShare(t, ts, domain.ShareRequest{
		URL:    "https://v.example/1",
		Source: "share-extension",
		TripID: "trip-1",
	})
	assert.NotEmpty(t, share.ID)
	assert.Equal(t, "share-extension", share.Source)

	resp, err := http.Get(ts.URL + "/shares")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var shares []domain.QueuedShare
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&shares))
	require.Len(t, shares, 1)
	assert.Equal(t, share.ID, shares[0].ID)

	countResp, err := http.Get(ts.URL + "/shares/count")
	require.NoError(t, err)
	defer countResp.Body.Close()

	var count map[string]int
	require.NoError(t, json.NewDecoder(countResp.Body).Decode(&count))
	assert.Equal(t, 1, count["count"])
}

func TestServer_EnqueueRejectsMissingURL(t *testing.T) {
	ts, _, _ := setupServer(t)

	resp, err := http.Post(ts.URL+"/shares", "application/json", bytes.NewReader([]byte(`{"source":"clipboard"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ListEmptyQueueReturnsEmptyArray(t *testing.T) {
	ts, _, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/shares")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var shares []domain.QueuedShare
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&shares))
	assert.NotNil(t, shares, "Empty queue serializes as [], not null")
	assert.Empty(t, shares)
}

func TestServer_GetShare(t *testing.T) {
	ts, _, _ := setupServer(t)

	share := postShare(t, ts, domain.ShareRequest{URL: "https://v.example/1", Source: "clipboard"})

	resp, err := http.Get(ts.URL + "/shares/" + share.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.QueuedShare
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, share.URL, got.URL)

	missing, err := http.Get(ts.URL + "/shares/does-not-exist")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServer_UpdateShare(t *testing.T) {
	ts, q, _ := setupServer(t)

	share := postShare(t, ts, domain.ShareRequest{URL: "https://v.example/1", Source: "clipboard"})

	resp := doRequest(t, http.MethodPatch, ts.URL+"/shares/"+share.ID, []byte(`{"tripId":"trip-3","notes":"harbour"}`))
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := q.ShareByID(context.Background(), share.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "trip-3", got.TripID)
	assert.Equal(t, "harbour", got.Notes)
	assert.Equal(t, "clipboard", got.Source)

	// Patching an unknown id keeps the queue's idempotent no-op contract.
	noop := doRequest(t, http.MethodPatch, ts.URL+"/shares/does-not-exist", []byte(`{"notes":"x"}`))
	defer noop.Body.Close()
	assert.Equal(t, http.StatusNoContent, noop.StatusCode)
}

func TestServer_DequeueAndClear(t *testing.T) {
	ts, q, _ := setupServer(t)

	first := postShare(t, ts, domain.ShareRequest{URL: "https://v.example/1", Source: "clipboard"})
	postShare(t, ts, domain.ShareRequest{URL: "https://v.example/2", Source: "clipboard"})

	resp := doRequest(t, http.MethodDelete, ts.URL+"/shares/"+first.ID, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	count, err := q.PendingShareCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	clearResp := doRequest(t, http.MethodDelete, ts.URL+"/shares", nil)
	defer clearResp.Body.Close()
	require.Equal(t, http.StatusNoContent, clearResp.StatusCode)

	count, err = q.PendingShareCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestServer_Flush(t *testing.T) {
	ts, q, ing := setupServer(t)

	postShare(t, ts, domain.ShareRequest{URL: "https://v.example/1", Source: "clipboard"})
	postShare(t, ts, domain.ShareRequest{URL: "https://v.example/2", Source: "clipboard"})

	resp := doRequest(t, http.MethodPost, ts.URL+"/flush", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result domain.FlushResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, domain.FlushResult{Succeeded: 2}, result)
	assert.Equal(t, 2, ing.calls)

	count, err := q.PendingShareCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestServer_FlushRecordsFailures(t *testing.T) {
	ts, q, ing := setupServer(t)
	ing.accept = false

	share := postShare(t, ts, domain.ShareRequest{URL: "https://v.example/1", Source: "clipboard"})

	resp := doRequest(t, http.MethodPost, ts.URL+"/flush", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result domain.FlushResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, domain.FlushResult{Failed: 1}, result)

	got, err := q.ShareByID(context.Background(), share.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.Error, "503")
}
