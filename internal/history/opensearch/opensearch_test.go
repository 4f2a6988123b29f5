package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/dutywatch/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedURL, receivedMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "dutywatch-history")
	occurred := time.Date(2025, 11, 14, 10, 0, 0, 0, time.UTC)
	err := sink.Send(context.Background(), history.Event{
		Type:       history.EventRestart,
		OccurredAt: occurred,
		Record:     history.Record{RunID: "r1", Process: "worker", PID: 99, Reason: "hotfix"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, receivedMethod)
	assert.Equal(t, "/dutywatch-history/_doc", receivedURL)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(receivedBody, &doc))
	assert.Equal(t, "restart", doc["type"])
	assert.Equal(t, "hotfix", doc["reason"])
	assert.Equal(t, "worker", doc["process"])
	assert.Equal(t, "2025-11-14T10:00:00Z", doc["@timestamp"])
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.Event{Type: history.EventStart})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenSearchSink_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()
	assert.Error(t, New(url, "idx").Send(context.Background(), history.Event{Type: history.EventStart}))
}
