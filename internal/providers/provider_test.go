package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoJSONDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": "ok"}`))
	}))
	defer srv.Close()

	var out struct {
		Value string `json:"value"`
	}
	build := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}

	err := doJSON(context.Background(), srv.Client(), build, 2, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Value)
}

func TestDoJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"value": "recovered"}`))
	}))
	defer srv.Close()

	var out struct {
		Value string `json:"value"`
	}
	build := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}

	err := doJSON(context.Background(), srv.Client(), build, 5, &out)
	require.NoError(t, err)
	assert.Equal(t, "recovered", out.Value)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	build := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}

	var out struct{}
	err := doJSON(context.Background(), srv.Client(), build, 5, &out)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "403 is permanent")
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(http.StatusTooManyRequests))
	assert.True(t, retryable(http.StatusInternalServerError))
	assert.True(t, retryable(http.StatusBadGateway))
	assert.False(t, retryable(http.StatusForbidden))
	assert.False(t, retryable(http.StatusNotFound))
	assert.False(t, retryable(http.StatusBadRequest))
}

func TestWithinWindow(t *testing.T) {
	ts := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	before := ts.Add(-time.Hour)
	after := ts.Add(time.Hour)

	assert.True(t, withinWindow(ts, nil, nil))
	assert.True(t, withinWindow(ts, &before, &after))
	assert.False(t, withinWindow(ts, &after, nil))
	assert.False(t, withinWindow(ts, nil, &before))
}

func TestProvidersReportConfiguration(t *testing.T) {
	assert.False(t, NewGoogleProvider("", "", time.Second, 1).Configured())
	assert.False(t, NewGoogleProvider("key", "", time.Second, 1).Configured())
	assert.True(t, NewGoogleProvider("key", "cx", time.Second, 1).Configured())

	assert.False(t, NewSerperProvider("", time.Second, 1).Configured())
	assert.True(t, NewSerperProvider("key", time.Second, 1).Configured())

	assert.False(t, NewYandexProvider("", "", time.Second, 1).Configured())
	assert.True(t, NewYandexProvider("key", "folder", time.Second, 1).Configured())

	assert.False(t, NewRSSProvider(nil).Configured())
	assert.True(t, NewRSSProvider([]string{"https://example.com/rss"}).Configured())
}

func TestUnconfiguredProvidersReturnNothing(t *testing.T) {
	ctx := context.Background()

	for _, p := range []Provider{
		NewGoogleProvider("", "", time.Second, 1),
		NewSerperProvider("", time.Second, 1),
		NewYandexProvider("", "", time.Second, 1),
		NewRSSProvider(nil),
	} {
		items, err := p.Search(ctx, "Sberbank", 10, nil, nil)
		assert.NoError(t, err, p.Name())
		assert.Empty(t, items, p.Name())
	}
}
