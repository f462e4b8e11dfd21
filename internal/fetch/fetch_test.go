package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-eks-go/internal/failure"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Statement":[]}`))
	}))
	defer srv.Close()

	body, err := New(nil, 0, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, `{"Statement":[]}`, string(body))
}

func TestHTTPFetcher_NonSuccessStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.Client(), 0, nil).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.NetworkFailure))
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "fetch must not retry")
}

func TestHTTPFetcher_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxBody+1024))
	}))
	defer srv.Close()

	_, err := New(nil, 0, nil).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.NetworkFailure))
	assert.Contains(t, err.Error(), "exceeds 16777216 bytes")
}

func TestHTTPFetcher_BodyAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxBody))
	}))
	defer srv.Close()

	body, err := New(nil, 0, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, body, maxBody)
}

func TestHTTPFetcher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(nil, 0, nil).Fetch(context.Background(), url)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.NetworkFailure))
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := New(nil, 50*time.Millisecond, nil).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.NetworkFailure))
}
