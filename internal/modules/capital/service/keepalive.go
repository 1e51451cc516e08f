package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// keepalive: фоновая задача, которой владеет SessionManager. stop отменяет её
// и ждёт выхода горутины, так что после stop ни один ping уже не уйдёт.
type keepalive struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (ka *keepalive) stop() {
	ka.cancel()
	<-ka.done
}

func (ka *keepalive) running() bool {
	select {
	case <-ka.done:
		return false
	default:
		return true
	}
}

// вызывать под m.mu
func (m *SessionManager) startKeepaliveLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	ka := &keepalive{cancel: cancel, done: make(chan struct{})}
	m.keepalive = ka
	go m.runKeepalive(ctx, ka.done)
}

func (m *SessionManager) runKeepalive(ctx context.Context, done chan struct{}) {
	defer close(done)

	t := time.NewTicker(m.pingInterval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		if !m.keepaliveEnabled.Load() {
			m.logger.Info("keepalive disabled, stopping")
			return
		}

		// каждая попытка независима: ошибка не трогает состояние сессии
		// и не останавливает следующие пинги
		if _, err := m.Ping(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			m.logger.Warn("keepalive ping failed",
				zap.Error(err),
				zap.Int("consecutive_failures", failures),
			)
			continue
		}
		if failures > 0 {
			m.logger.Info("keepalive ping recovered", zap.Int("after_failures", failures))
		}
		failures = 0
	}
}

// SetKeepalive включает/выключает keepalive. Выключение останавливает задачу
// синхронно; включение при открытой сессии запускает её заново.
func (m *SessionManager) SetKeepalive(enabled bool) {
	m.keepaliveEnabled.Store(enabled)

	m.mu.Lock()
	if !enabled {
		ka := m.keepalive
		m.keepalive = nil
		m.mu.Unlock()
		if ka != nil {
			ka.stop()
		}
		return
	}
	defer m.mu.Unlock()

	if m.state != Connected {
		return
	}
	if m.keepalive != nil && m.keepalive.running() {
		return
	}
	m.startKeepaliveLocked()
}

// KeepaliveRunning: есть ли сейчас живая фоновая задача.
func (m *SessionManager) KeepaliveRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keepalive != nil && m.keepalive.running()
}
