package chat

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
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:           srv.URL,
		Token:             "test-token",
		ActionURL:         "https://bot.example.com/hooks/action",
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	client.retryCfg.BaseDelay = time.Millisecond
	client.retryCfg.MaxDelay = 5 * time.Millisecond
	return client, srv
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(ClientConfig{Token: "x"})
	assert.Error(t, err)

	_, err = NewClient(ClientConfig{BaseURL: "https://chat.example.com"})
	assert.Error(t, err)
}

func TestPostCard(t *testing.T) {
	var got postPayload
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v4/posts", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(postResponse{ID: "post-1"})
	})

	handle, err := client.PostCard(context.Background(), "chan-1", Card{Text: "body", Actions: true})
	require.NoError(t, err)
	assert.Equal(t, "post-1", handle)
	assert.Equal(t, "chan-1", got.ChannelID)
	assert.Equal(t, "body", got.Message)
	require.NotNil(t, got.Props, "open cards must carry action buttons")

	attachments, ok := got.Props["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)
}

func TestPostCardWithoutActions(t *testing.T) {
	var got postPayload
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(postResponse{ID: "post-2"})
	})

	_, err := client.PostCard(context.Background(), "chan-1", Card{Text: "done"})
	require.NoError(t, err)
	assert.Nil(t, got.Props)
}

func TestEditCard(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v4/posts/post-1/patch", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	err := client.EditCard(context.Background(), "chan-1", "post-1", Card{Text: "updated"})
	require.NoError(t, err)
}

func TestDeleteMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v4/posts/post-9", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.DeleteMessage(context.Background(), "chan-1", "post-9"))
}

func TestDoRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	var requestIDs []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requestIDs = append(requestIDs, r.Header.Get("X-Request-Id"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(postResponse{ID: "post-3"})
	})

	handle, err := client.PostMessage(context.Background(), "chan-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "post-3", handle)
	assert.Equal(t, int32(3), calls.Load())

	// All attempts of one logical call share a request ID.
	require.Len(t, requestIDs, 3)
	assert.Equal(t, requestIDs[0], requestIDs[1])
	assert.Equal(t, requestIDs[0], requestIDs[2])
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := client.PostMessage(context.Background(), "chan-1", "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
