package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthStatusAllOK(t *testing.T) {
	h := NewHealthChecker()
	h.Register("store", pingFunc(func(context.Context) error { return nil }))

	status := h.GetHealthStatus(context.Background())

	assert.Equal(t, "ok", status["status"])
	checks := status["checks"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"status": "ok"}, checks["store"])
}

func TestHealthStatusDegraded(t *testing.T) {
	h := NewHealthChecker()
	h.Register("store", pingFunc(func(context.Context) error { return nil }))
	h.Register("redis", pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }))

	status := h.GetHealthStatus(context.Background())

	assert.Equal(t, "degraded", status["status"])
	redis := status["checks"].(map[string]interface{})["redis"].(map[string]interface{})
	assert.Equal(t, "error", redis["status"])
	assert.Equal(t, "dial tcp: refused", redis["error"])
}
