package service

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"capital_bot/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// State: Disconnected → Connecting → Connected → Disconnected, без ретраев.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Credentials неизменяемы после создания менеджера.
type Credentials struct {
	Identifier string
	Password   string
	APIKey     string
}

// Session: снимок активной сессии. Токены валидны тогда и только тогда, когда Connected.
type Session struct {
	BaseURL       string
	SecurityToken string
	CST           string
	Connected     bool
	PingInterval  time.Duration
}

func (s Session) tokens() Tokens {
	return Tokens{SecurityToken: s.SecurityToken, CST: s.CST}
}

// LivenessResult: ответ /api/v1/ping.
type LivenessResult struct {
	Status string `json:"status"`
}

// EventSink получает события сессии. Вызывается синхронно, в том числе из keepalive,
// поэтому реализация не должна надолго блокировать.
type EventSink interface {
	SessionEvent(ctx context.Context, ev models.SessionEvent)
}

// MultiSink раздаёт событие всем получателям по порядку.
type MultiSink []EventSink

func (m MultiSink) SessionEvent(ctx context.Context, ev models.SessionEvent) {
	for _, s := range m {
		if s != nil {
			s.SessionEvent(ctx, ev)
		}
	}
}

// SessionManager владеет учётными данными, токенами сессии и keepalive.
// Open/Close должны вызываться последовательно; Tokens/Ping безопасны конкурентно.
type SessionManager struct {
	creds        Credentials
	environment  string
	pingInterval time.Duration

	tr     *transport
	logger *zap.Logger
	sink   EventSink

	keepaliveEnabled atomic.Bool

	mu        sync.RWMutex
	state     State
	session   Session
	keepalive *keepalive
}

func newSessionManager(tr *transport, creds Credentials, environment string, pingInterval time.Duration, keepaliveOn bool, sink EventSink, logger *zap.Logger) *SessionManager {
	m := &SessionManager{
		creds:        creds,
		environment:  environment,
		pingInterval: pingInterval,
		tr:           tr,
		logger:       logger,
		sink:         sink,
	}
	m.keepaliveEnabled.Store(keepaliveOn)
	return m
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Open логинится и запускает keepalive. Любой сбой => *AuthenticationError,
// состояние остаётся Disconnected, токены не сохраняются.
func (m *SessionManager) Open(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.state != Disconnected {
		m.mu.Unlock()
		return Session{}, ErrAlreadyConnected
	}
	m.state = Connecting
	m.mu.Unlock()

	tokens, err := m.login(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = Disconnected
		m.session = Session{}
		m.mu.Unlock()

		m.logger.Warn("capital login failed", zap.String("environment", m.environment), zap.Error(err))
		m.emit(ctx, models.SessionAuthFailed, err)
		return Session{}, err
	}

	m.mu.Lock()
	m.session = Session{
		BaseURL:       m.tr.baseURL,
		SecurityToken: tokens.SecurityToken,
		CST:           tokens.CST,
		Connected:     true,
		PingInterval:  m.pingInterval,
	}
	m.state = Connected
	if m.keepaliveEnabled.Load() {
		m.startKeepaliveLocked()
	}
	s := m.session
	m.mu.Unlock()

	m.logger.Info("capital session opened",
		zap.String("environment", m.environment),
		zap.Duration("ping_interval", m.pingInterval),
	)
	m.emit(ctx, models.SessionOpened, nil)
	return s, nil
}

func (m *SessionManager) login(ctx context.Context) (Tokens, error) {
	payload, err := sonic.Marshal(loginRequest{
		Identifier: m.creds.Identifier,
		Password:   m.creds.Password,
	})
	if err != nil {
		return Tokens{}, &AuthenticationError{Err: errors.Wrap(err, "marshal login")}
	}

	h := http.Header{}
	h.Set(headerAPIKey, m.creds.APIKey)
	h.Set("Content-Type", "application/json")

	r, err := m.tr.do(ctx, call{
		op:     "session.create",
		method: http.MethodPost,
		path:   "/api/v1/session",
		header: h,
		body:   payload,
	})
	if err != nil {
		authErr := &AuthenticationError{Err: err}
		if r != nil {
			authErr.StatusCode = r.status
		}
		return Tokens{}, authErr
	}

	t := Tokens{
		SecurityToken: r.header.Get(headerSecurityToken),
		CST:           r.header.Get(headerCST),
	}
	if t.SecurityToken == "" || t.CST == "" {
		return Tokens{}, &AuthenticationError{Err: errors.New("response has no CST / X-SECURITY-TOKEN headers")}
	}
	return t, nil
}

// Close идемпотентен. Запрос на завершение сессии best-effort: его результат
// игнорируется, локальное состояние чистится всегда. keepalive останавливается
// синхронно до возврата.
func (m *SessionManager) Close(ctx context.Context) {
	m.mu.Lock()
	ka := m.keepalive
	m.keepalive = nil
	connected := m.state == Connected
	tokens := m.session.tokens()
	m.mu.Unlock()

	if ka != nil {
		ka.stop()
	}

	if connected {
		h := http.Header{}
		tokens.apply(h)
		if _, err := m.tr.do(ctx, call{
			op:     "session.delete",
			method: http.MethodDelete,
			path:   "/api/v1/session",
			header: h,
		}); err != nil {
			m.logger.Debug("capital logout failed, ignoring", zap.Error(err))
		}
	}

	m.mu.Lock()
	m.session = Session{}
	m.state = Disconnected
	m.mu.Unlock()

	if connected {
		m.logger.Info("capital session closed", zap.String("environment", m.environment))
		m.emit(ctx, models.SessionClosed, nil)
	}
}

// Ping: no-op без сессии. Ошибки транспорта/API отдаются вызывающему как есть.
func (m *SessionManager) Ping(ctx context.Context) (LivenessResult, error) {
	tokens, ok := m.Tokens()
	if !ok {
		return LivenessResult{}, nil
	}

	h := http.Header{}
	tokens.apply(h)
	r, err := m.tr.do(ctx, call{
		op:     "ping",
		method: http.MethodGet,
		path:   "/api/v1/ping",
		header: h,
	})
	if err == nil {
		var res LivenessResult
		if err = decode("ping", r, &res); err == nil {
			m.emit(ctx, models.SessionPingOK, nil)
			return res, nil
		}
	}

	// отмена контекста (Close посреди пинга): не сбой keepalive
	if ctx.Err() == nil {
		m.emit(ctx, models.SessionPingFailed, err)
	}
	return LivenessResult{}, err
}

// Tokens: согласованный снимок токенов; ok=false, если сессии нет.
func (m *SessionManager) Tokens() (Tokens, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Connected {
		return Tokens{}, false
	}
	return m.session.tokens(), true
}

// Session возвращает копию текущей сессии.
func (m *SessionManager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *SessionManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *SessionManager) Connected() bool { return m.State() == Connected }

func (m *SessionManager) Environment() string { return m.environment }

func (m *SessionManager) emit(ctx context.Context, kind models.SessionEventKind, err error) {
	if m.sink == nil {
		return
	}
	m.sink.SessionEvent(ctx, models.SessionEvent{
		Kind:        kind,
		Environment: m.environment,
		At:          time.Now(),
		Err:         err,
	})
}
