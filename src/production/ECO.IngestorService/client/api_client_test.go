package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastOptions = Options{
	MaxRetries:   2,
	RetryDelay:   time.Millisecond,
	MaxFailures:  3,
	ResetTimeout: 50 * time.Millisecond,
}

func TestCreateReadingSendsPayloadWithServiceToken(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/readings", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":17}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "secret", fastOptions)
	id, err := c.CreateReading(context.Background(), []byte(`{"hardware_sensor_id":"hw"}`))

	require.NoError(t, err)
	assert.Equal(t, int64(17), id)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.JSONEq(t, `{"hardware_sensor_id":"hw"}`, gotBody)
}

func TestCreateReadingRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "secret", fastOptions)
	id, err := c.CreateReading(context.Background(), []byte(`{}`))

	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, StateClosed, c.circuitBreaker.State())
}

func TestCreateReadingDoesNotRetryRejectedPayload(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"hardware_sensor_id: required"}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "secret", fastOptions)
	_, err := c.CreateReading(context.Background(), []byte(`{}`))

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Contains(t, serr.Body, "hardware_sensor_id")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, StateClosed, c.circuitBreaker.State())
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var healthy atomic.Bool
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":9}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "secret", fastOptions)

	_, err := c.CreateReading(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, StateOpen, c.circuitBreaker.State())
	assert.Equal(t, "open", c.GetCircuitBreakerStatus()["state"])

	before := atomic.LoadInt32(&calls)
	_, err = c.CreateReading(context.Background(), []byte(`{}`))
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Equal(t, before, atomic.LoadInt32(&calls))

	healthy.Store(true)
	time.Sleep(60 * time.Millisecond)

	id, err := c.CreateReading(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.Equal(t, StateClosed, c.circuitBreaker.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.onFailure()
	require.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.canExecute())

	time.Sleep(15 * time.Millisecond)
	require.True(t, cb.canExecute())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.onFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health/live" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.NoError(t, NewAPIClient(srv.URL, "s", fastOptions).Health(context.Background()))
	assert.Error(t, NewAPIClient(srv.URL+"/nope", "s", fastOptions).Health(context.Background()))
}
