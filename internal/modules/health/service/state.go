package service

import (
	"context"
	"sync/atomic"
	"time"

	"capital_bot/internal/models"
)

// State: снимок здоровья процесса, обновляется событиями сессии capital.com.
type State struct {
	startedAt time.Time

	connected           atomic.Bool
	lastPingUnix        atomic.Int64 // unix seconds
	pingFailures        atomic.Int64
	consecutiveFailures atomic.Int64
}

func NewState() *State {
	return &State{startedAt: time.Now()}
}

// SessionEvent реализует EventSink клиента.
func (s *State) SessionEvent(_ context.Context, ev models.SessionEvent) {
	switch ev.Kind {
	case models.SessionOpened:
		s.connected.Store(true)
		s.consecutiveFailures.Store(0)
	case models.SessionClosed, models.SessionAuthFailed:
		s.connected.Store(false)
	case models.SessionPingOK:
		s.lastPingUnix.Store(ev.At.Unix())
		s.consecutiveFailures.Store(0)
	case models.SessionPingFailed:
		s.pingFailures.Add(1)
		s.consecutiveFailures.Add(1)
	}
}

// Ready: есть открытая сессия.
func (s *State) Ready() bool     { return s.connected.Load() }
func (s *State) Connected() bool { return s.connected.Load() }

func (s *State) LastPing() time.Time {
	u := s.lastPingUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) PingFailures() int64        { return s.pingFailures.Load() }
func (s *State) ConsecutiveFailures() int64 { return s.consecutiveFailures.Load() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
