package fetch_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/goRawrGallery/breaker"
	"github.com/Keksclan/goRawrGallery/fetch"
	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gallery-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("payload"))
	}))
	t.Cleanup(srv.Close)

	f := fetch.NewHTTP(fetch.WithUserAgent("gallery-test"))
	body, err := f.Fetch(t.Context(), srv.URL+"/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestHTTPFetcher_StatusCodes(t *testing.T) {
	tests := []struct {
		status int
		code   errors.ErrorCode
	}{
		{status: http.StatusNotFound, code: errors.CodeNotFound},
		{status: http.StatusForbidden, code: errors.CodeForbidden},
		{status: http.StatusTooManyRequests, code: errors.CodeRateLimit},
		{status: http.StatusBadGateway, code: errors.CodeUnavailable},
		{status: http.StatusBadRequest, code: errors.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(srv.Close)

			_, err := fetch.NewHTTP().Fetch(t.Context(), srv.URL)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestHTTPFetcher_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	t.Cleanup(srv.Close)

	_, err := fetch.NewHTTP(fetch.WithMaxBytes(16)).Fetch(t.Context(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	body, err := fetch.NewHTTP(fetch.WithMaxBytes(64)).Fetch(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, body, 64)
}

func TestHTTPFetcher_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := fetch.NewHTTP().Fetch(t.Context(), url)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNetwork, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestHTTPFetcher_BreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	f := fetch.NewHTTP(fetch.WithBreaker(breaker.Config{FailureThreshold: 2, OpenTimeout: time.Hour}))

	for range 2 {
		_, err := f.Fetch(t.Context(), srv.URL+"/a.jpg")
		require.Error(t, err)
	}
	require.Equal(t, int32(2), hits.Load())

	_, err := f.Fetch(t.Context(), srv.URL+"/b.jpg")
	require.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the origin")
}

func TestHTTPFetcher_BreakerIgnoresPermanentFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	f := fetch.NewHTTP(fetch.WithBreaker(breaker.Config{FailureThreshold: 1, OpenTimeout: time.Hour}))

	for range 3 {
		_, err := f.Fetch(t.Context(), srv.URL+"/missing.jpg")
		require.Error(t, err)
		assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	}
	assert.Equal(t, int32(3), hits.Load())
}
