package drain_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywheel-gateway/control-plane/internal/drain"
)

func TestStateMachine_Transitions(t *testing.T) {
	c := drain.New()
	assert.Equal(t, drain.ModeRunning, c.Mode())

	require.NoError(t, c.StartMaintenance("test"))
	assert.Equal(t, drain.ModeMaintenance, c.Mode())

	require.NoError(t, c.Resume())
	assert.Equal(t, drain.ModeRunning, c.Mode())

	require.NoError(t, c.StartDraining(5, "test"))
	assert.Equal(t, drain.ModeDraining, c.Mode())
}

func TestStartDraining_RejectsOutOfRangeDeadline(t *testing.T) {
	c := drain.New()
	assert.Error(t, c.StartDraining(0, "x"))
	assert.Error(t, c.StartDraining(301, "x"))
}

func TestResume_OnlyFromMaintenance(t *testing.T) {
	c := drain.New()
	assert.Error(t, c.Resume())

	require.NoError(t, c.StartDraining(5, "x"))
	assert.Error(t, c.Resume())
}

// TestScenario_S6_Drain is spec §8 scenario S6.
func TestScenario_S6_Drain(t *testing.T) {
	c := drain.New()
	require.NoError(t, c.StartDraining(5, "test"))

	handler := drain.Middleware(c, drain.DefaultMiddlewareConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, 503, rec.Code)
	assert.Contains(t, rec.Body.String(), "DRAINING")
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))

	healthReq := httptest.NewRequest(http.MethodGet, "/health", nil)
	healthRec := httptest.NewRecorder()
	handler.ServeHTTP(healthRec, healthReq)
	assert.Equal(t, 200, healthRec.Code)

	assert.False(t, c.AllowWebSocketUpgrade())
}

func TestTrackRequest_SymmetricUnderAllExits(t *testing.T) {
	c := drain.New()
	handler := drain.Middleware(c, drain.DefaultMiddlewareConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	defer func() {
		_ = recover()
		// TrackRequestEnd runs via defer before the panic propagates
		// past ServeHTTP, so inflight must already be back to zero.
		assert.Equal(t, int64(0), c.InflightRequests())
	}()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestWaitForDrain_CompletesWhenInflightReachesZero(t *testing.T) {
	c := drain.New()
	c.TrackRequestStart()

	go func() {
		time.Sleep(50 * time.Millisecond)
		c.TrackRequestEnd()
	}()

	ok := c.WaitForDrain(time.Now().Add(time.Second))
	assert.True(t, ok)
}

func TestWaitForDrain_RespectsDeadline(t *testing.T) {
	c := drain.New()
	c.TrackRequestStart()

	ok := c.WaitForDrain(time.Now().Add(50 * time.Millisecond))
	assert.False(t, ok)
}
