package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneira/oneira/internal/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&config.EngineConfig{
		BaseURL: baseURL,
		Token:   "test-engine-token",
		Timeout: 5 * time.Second,
	})
}

func TestDispatch_SendsExpectedPayload(t *testing.T) {
	var (
		gotPath   string
		gotAuth   string
		gotCT     string
		gotBody   map[string]interface{}
		reqCount  int
		bodyError error
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqCount++
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		bodyError = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Dispatch(context.Background(), &DispatchRequest{
		TraceID: "trc-123",
		Dream: DreamSpec{
			Description: "flying over a neon city",
			Reject:      []string{"spiders", "falling"},
		},
		UserPhotos: []PhotoRef{
			{ID: "pho-1", URL: "https://storage.example.com/pho-1?sig=abc"},
		},
		Options: Options{ImagesCount: 4},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, reqCount, "exactly one POST per dispatch")
	assert.Equal(t, "/v1/generate", gotPath)
	assert.Equal(t, "Bearer test-engine-token", gotAuth)
	assert.Equal(t, "application/json", gotCT)

	require.NoError(t, bodyError)
	assert.Equal(t, "trc-123", gotBody["traceId"])

	dream, ok := gotBody["dream"].(map[string]interface{})
	require.True(t, ok, "payload carries a dream object")
	assert.Equal(t, "flying over a neon city", dream["description"])
	assert.Equal(t, []interface{}{"spiders", "falling"}, dream["reject"])

	photos, ok := gotBody["userPhotos"].([]interface{})
	require.True(t, ok, "payload carries userPhotos")
	require.Len(t, photos, 1)
	photo := photos[0].(map[string]interface{})
	assert.Equal(t, "pho-1", photo["id"])
	assert.Equal(t, "https://storage.example.com/pho-1?sig=abc", photo["url"])

	options, ok := gotBody["options"].(map[string]interface{})
	require.True(t, ok, "payload carries options")
	assert.Equal(t, float64(4), options["imagesCount"])
}

func TestDispatch_NoTokenOmitsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(&config.EngineConfig{BaseURL: srv.URL, Timeout: time.Second})
	err := c.Dispatch(context.Background(), &DispatchRequest{TraceID: "trc-1"})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestDispatch_Non2xxReturnsAPIErrorWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"gpu pool exhausted"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Dispatch(context.Background(), &DispatchRequest{TraceID: "trc-err"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "error must be an *APIError, got %T", err)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "gpu pool exhausted")
	assert.Contains(t, apiErr.Error(), "500")
}

func TestDispatch_CapsDiagnosticBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", 10_000)))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Dispatch(context.Background(), &DispatchRequest{TraceID: "trc-big"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.LessOrEqual(t, len(apiErr.Body), 4096)
}

func TestDispatch_ContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Dispatch(ctx, &DispatchRequest{TraceID: "trc-slow"})
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr), "transport errors are not APIErrors")
}

func TestDispatch_TrimsTrailingSlashFromBaseURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(&config.EngineConfig{BaseURL: srv.URL + "/", Timeout: time.Second})
	err := c.Dispatch(context.Background(), &DispatchRequest{TraceID: "trc-1"})
	require.NoError(t, err)
	assert.Equal(t, "/v1/generate", gotPath)
}
