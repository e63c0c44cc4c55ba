package fetcher_test

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

	"github.com/flagsync/flagsync/fetcher"
)

func newTestFetcher(t *testing.T, serverURL string, retries int) *fetcher.Fetcher {
	t.Helper()
	f, err := fetcher.New(fetcher.Config{
		URL:        serverURL,
		AppName:    "test-app",
		InstanceID: "test-instance",
		Timeout:    5 * time.Second,
		Retries:    retries,
	}, fetcher.WithBackoff(fetcher.FixedBackoff{Interval: time.Millisecond}))
	require.NoError(t, err)
	return f
}

func TestNew_InvalidURL(t *testing.T) {
	t.Parallel()

	for _, rawURL := range []string{"", "not a url", "ftp://example.com", "https://"} {
		_, err := fetcher.New(fetcher.Config{URL: rawURL})
		assert.ErrorIs(t, err, fetcher.ErrInvalidURL, "url %q", rawURL)
	}
}

func TestFetchFeatures_OK(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fetcher.FeaturesPath, r.URL.Path)
		assert.Equal(t, "test-app", r.Header.Get(fetcher.HeaderAppName))
		assert.Equal(t, "test-instance", r.Header.Get(fetcher.HeaderInstanceID))
		w.Header().Set("ETag", `W/"1"`)
		w.Write([]byte(`{"version":1,"features":[]}`))
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, 0)
	result, err := f.FetchFeatures(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, result.Modified)
	assert.Equal(t, `W/"1"`, result.ETag)
	assert.JSONEq(t, `{"version":1,"features":[]}`, string(result.State))
}

func TestFetchFeatures_ProjectFilter(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "billing", r.URL.Query().Get("project"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	f, err := fetcher.New(fetcher.Config{
		URL:     server.URL,
		Project: "billing",
	})
	require.NoError(t, err)

	_, err = f.FetchFeatures(context.Background(), "")
	require.NoError(t, err)
}

func TestFetchFeatures_NotModified(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `W/"1"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, 0)
	result, err := f.FetchFeatures(context.Background(), `W/"1"`)
	require.NoError(t, err)

	assert.False(t, result.Modified)
	assert.Nil(t, result.State)
	// Without a fresh ETag, the token the request was made with survives.
	assert.Equal(t, `W/"1"`, result.ETag)
}

func TestFetchFeatures_NotModifiedWithNewTag(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `W/"2"`)
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, 0)
	result, err := f.FetchFeatures(context.Background(), `W/"1"`)
	require.NoError(t, err)

	assert.False(t, result.Modified)
	assert.Equal(t, `W/"2"`, result.ETag)
}

func TestFetchFeatures_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"version":1}`))
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, 3)
	result, err := f.FetchFeatures(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, result.Modified)
	assert.Equal(t, int64(4), calls.Load())
}

func TestFetchFeatures_RetriesExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, 2)
	_, err := f.FetchFeatures(context.Background(), "")
	require.ErrorIs(t, err, fetcher.ErrRetriesExhausted)
	assert.Equal(t, int64(3), calls.Load())
}

func TestFetchFeatures_NonTransientStatusFailsImmediately(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, 3)
	_, err := f.FetchFeatures(context.Background(), "")
	require.ErrorIs(t, err, fetcher.ErrUnexpectedStatus)
	assert.NotErrorIs(t, err, fetcher.ErrRetriesExhausted)
	assert.Equal(t, int64(1), calls.Load())
}

func TestFetchFeatures_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f, err := fetcher.New(fetcher.Config{
		URL:     server.URL,
		Retries: 5,
	}, fetcher.WithBackoff(fetcher.FixedBackoff{Interval: time.Minute}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = f.FetchFeatures(ctx, "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchDeltas(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fetcher.DeltaPath, r.URL.Path)
		w.Header().Set("ETag", `W/"d1"`)
		w.Write([]byte(`{"events":[{"type":"hydration","features":[]}]}`))
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, 0)
	result, err := f.FetchDeltas(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, result.Modified)
	assert.Equal(t, `W/"d1"`, result.ETag)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, fetcher.RegisterPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var reg fetcher.Registration
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reg))
		assert.Equal(t, "test-app", reg.AppName)
		assert.Equal(t, int64(60000), reg.Interval)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, 0)
	err := f.Register(context.Background(), fetcher.Registration{
		AppName:    "test-app",
		InstanceID: "test-instance",
		SDKVersion: "flagsync-go/1.0.0",
		Started:    time.Now(),
		Interval:   60000,
	})
	require.NoError(t, err)
}

func TestRegister_ServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, 0)
	err := f.Register(context.Background(), fetcher.Registration{AppName: "test-app"})
	require.ErrorIs(t, err, fetcher.ErrRegistration)
}

func TestSendMetrics(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fetcher.MetricsPath, r.URL.Path)

		var payload fetcher.MetricsPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.JSONEq(t, `{"toggles":{"f":{"yes":1,"no":0}}}`, string(payload.Bucket))

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, 0)
	err := f.SendMetrics(context.Background(), fetcher.MetricsPayload{
		AppName: "test-app",
		Bucket:  json.RawMessage(`{"toggles":{"f":{"yes":1,"no":0}}}`),
	})
	require.NoError(t, err)
}

func TestSendMetrics_ServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, 0)
	err := f.SendMetrics(context.Background(), fetcher.MetricsPayload{AppName: "test-app"})
	require.ErrorIs(t, err, fetcher.ErrMetricsSubmission)
}

func TestAuthorizationHeaderForwarded(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-123", r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	headers := http.Header{}
	headers.Set("Authorization", "token-123")
	f, err := fetcher.New(fetcher.Config{URL: server.URL, Headers: headers})
	require.NoError(t, err)

	_, err = f.FetchFeatures(context.Background(), "")
	require.NoError(t, err)
}
