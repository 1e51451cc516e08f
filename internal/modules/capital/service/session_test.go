package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"capital_bot/internal/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOpen_Success(t *testing.T) {
	api := newFakeAPI(t)
	sink := &recordingSink{}
	c := newTestClient(t, api, func(o *Options) {
		o.Sink = sink
		o.PingInterval = 42 * time.Second
	})

	assert.Equal(t, Disconnected, c.State())

	s, err := c.Open(context.Background())
	require.NoError(t, err)

	assert.True(t, s.Connected)
	assert.Equal(t, testCST, s.CST)
	assert.Equal(t, testToken, s.SecurityToken)
	assert.Equal(t, api.srv.URL, s.BaseURL)
	assert.Equal(t, 42*time.Second, s.PingInterval)
	assert.Equal(t, Connected, c.State())

	tokens, ok := c.Tokens()
	require.True(t, ok)
	assert.Equal(t, Tokens{SecurityToken: testToken, CST: testCST}, tokens)

	api.mu.Lock()
	body := api.loginBody
	api.mu.Unlock()
	assert.Equal(t, "trader@example.com", body["identifier"])
	assert.Equal(t, "s3cret", body["password"])
	assert.Equal(t, testKey, body["_apikey"])
	assert.Equal(t, "application/json", body["_content_type"])

	assert.Equal(t, []models.SessionEventKind{models.SessionOpened}, sink.kinds())
}

func TestOpen_Unauthorized(t *testing.T) {
	api := newFakeAPI(t)
	api.loginStatus.Store(http.StatusUnauthorized)
	sink := &recordingSink{}
	c := newTestClient(t, api, func(o *Options) { o.Sink = sink })

	s, err := c.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, Session{}, s)

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "error.invalid.details", apiErr.ErrorCode)

	assert.Equal(t, Disconnected, c.State())
	_, ok := c.Tokens()
	assert.False(t, ok)
	assert.Equal(t, Session{}, c.Session())
	assert.False(t, c.KeepaliveRunning())
	assert.Equal(t, []models.SessionEventKind{models.SessionAuthFailed}, sink.kinds())
}

func TestOpen_TransportFailure(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api, nil)
	api.srv.Close()

	_, err := c.Open(context.Background())

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Zero(t, authErr.StatusCode)

	var trErr *TransportError
	assert.True(t, errors.As(err, &trErr))
	assert.Equal(t, Disconnected, c.State())
}

func TestOpen_MissingTokenHeaders(t *testing.T) {
	api := newFakeAPI(t)
	api.loginNoHdr.Store(true)
	c := newTestClient(t, api, nil)

	_, err := c.Open(context.Background())

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, Disconnected, c.State())
	_, ok := c.Tokens()
	assert.False(t, ok)
}

func TestOpen_AlreadyConnected(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api, nil)
	openClient(t, c)

	_, err := c.Open(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, int32(1), api.logins.Load())
	assert.Equal(t, Connected, c.State())
}

func TestClose_Idempotent(t *testing.T) {
	api := newFakeAPI(t)
	sink := &recordingSink{}
	c := newTestClient(t, api, func(o *Options) { o.Sink = sink })

	// без сессии: ни одного запроса
	c.Close(context.Background())
	c.Close(context.Background())
	assert.Equal(t, int32(0), api.logouts.Load())
	assert.False(t, c.Connected())

	openClient(t, c)
	c.Close(context.Background())
	assert.False(t, c.Connected())
	c.Close(context.Background())
	assert.False(t, c.Connected())

	assert.Equal(t, int32(1), api.logouts.Load())
	assert.Equal(t, Session{}, c.Session())
	assert.Equal(t, []models.SessionEventKind{models.SessionOpened, models.SessionClosed}, sink.kinds())

	// объект переиспользуем
	openClient(t, c)
	assert.True(t, c.Connected())
}

func TestClose_IgnoresLogoutFailure(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api, nil)
	openClient(t, c)

	api.srv.Close()
	c.Close(context.Background())

	assert.Equal(t, Disconnected, c.State())
	_, ok := c.Tokens()
	assert.False(t, ok)
}

func TestPing(t *testing.T) {
	t.Run("no-op without session", func(t *testing.T) {
		api := newFakeAPI(t)
		c := newTestClient(t, api, nil)

		res, err := c.Ping(context.Background())
		require.NoError(t, err)
		assert.Equal(t, LivenessResult{}, res)
		assert.Equal(t, int32(0), api.pings.Load())
	})

	t.Run("ok", func(t *testing.T) {
		api := newFakeAPI(t)
		sink := &recordingSink{}
		c := newTestClient(t, api, func(o *Options) { o.Sink = sink })
		openClient(t, c)

		res, err := c.Ping(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "OK", res.Status)
		assert.Equal(t, int32(1), api.pings.Load())
		assert.Contains(t, sink.kinds(), models.SessionPingOK)
	})

	t.Run("api error", func(t *testing.T) {
		api := newFakeAPI(t)
		sink := &recordingSink{}
		c := newTestClient(t, api, func(o *Options) { o.Sink = sink })
		openClient(t, c)
		api.pingStatus.Store(http.StatusInternalServerError)

		_, err := c.Ping(context.Background())
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.True(t, c.Connected())
		assert.Contains(t, sink.kinds(), models.SessionPingFailed)
	})

	t.Run("unparsable body", func(t *testing.T) {
		api := newFakeAPI(t)
		c := newTestClient(t, api, nil)
		openClient(t, c)
		api.pingBody.Store(`{"status":`)

		_, err := c.Ping(context.Background())
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusOK, apiErr.StatusCode)
		assert.Error(t, apiErr.Err)
	})

	t.Run("transport error", func(t *testing.T) {
		api := newFakeAPI(t)
		c := newTestClient(t, api, nil)
		openClient(t, c)
		api.srv.Close()

		_, err := c.Ping(context.Background())
		var trErr *TransportError
		require.True(t, errors.As(err, &trErr))
		assert.Equal(t, "ping", trErr.Op)
	})
}

func TestKeepalive_PingsUntilClose(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api, func(o *Options) {
		o.Keepalive = true
		o.PingInterval = 10 * time.Millisecond
	})
	openClient(t, c)
	assert.True(t, c.KeepaliveRunning())

	require.Eventually(t, func() bool { return api.pings.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	c.Close(context.Background())
	assert.False(t, c.KeepaliveRunning())

	after := api.pings.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, api.pings.Load(), "no pings after Close")
}

func TestKeepalive_FailuresAreSwallowed(t *testing.T) {
	api := newFakeAPI(t)
	core, logs := observer.New(zapcore.WarnLevel)
	c := newTestClient(t, api, func(o *Options) {
		o.Keepalive = true
		o.PingInterval = 10 * time.Millisecond
		o.Logger = zap.New(core)
	})
	openClient(t, c)
	api.pingStatus.Store(http.StatusServiceUnavailable)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("keepalive ping failed").Len() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	// сбои не роняют сессию и не останавливают расписание
	assert.True(t, c.Connected())
	assert.True(t, c.KeepaliveRunning())

	entries := logs.FilterMessage("keepalive ping failed").AllUntimed()
	assert.EqualValues(t, 1, entries[0].ContextMap()["consecutive_failures"])
	assert.EqualValues(t, 2, entries[1].ContextMap()["consecutive_failures"])

	api.pingStatus.Store(http.StatusOK)
	before := api.pings.Load()
	require.Eventually(t, func() bool { return api.pings.Load() > before+1 }, 2*time.Second, 5*time.Millisecond)
}

func TestKeepalive_Toggle(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api, func(o *Options) {
		o.Keepalive = true
		o.PingInterval = 10 * time.Millisecond
	})
	openClient(t, c)
	require.Eventually(t, func() bool { return api.pings.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)

	c.SetKeepalive(false)
	assert.False(t, c.KeepaliveRunning())
	stopped := api.pings.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, api.pings.Load())

	c.SetKeepalive(true)
	assert.True(t, c.KeepaliveRunning())
	require.Eventually(t, func() bool { return api.pings.Load() > stopped }, 2*time.Second, 5*time.Millisecond)
}

func TestKeepalive_NotStartedWhenDisabled(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api, func(o *Options) {
		o.Keepalive = false
		o.PingInterval = 10 * time.Millisecond
	})
	openClient(t, c)

	assert.False(t, c.KeepaliveRunning())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), api.pings.Load())

	// включение без сессии ничего не запускает
	c.Close(context.Background())
	c.SetKeepalive(true)
	assert.False(t, c.KeepaliveRunning())
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	MultiSink{a, nil, b}.SessionEvent(context.Background(), models.SessionEvent{Kind: models.SessionClosed})

	assert.Equal(t, []models.SessionEventKind{models.SessionClosed}, a.kinds())
	assert.Equal(t, []models.SessionEventKind{models.SessionClosed}, b.kinds())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", State(9).String())
}
