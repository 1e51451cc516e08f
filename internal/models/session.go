package models

import (
	"time"
)

type SessionEventKind string

const (
	SessionOpened     SessionEventKind = "opened"
	SessionAuthFailed SessionEventKind = "auth_failed"
	SessionClosed     SessionEventKind = "closed"
	SessionPingOK     SessionEventKind = "ping_ok"
	SessionPingFailed SessionEventKind = "ping_failed"
)

// SessionEvent: то, что SessionManager сообщает наружу (health, алерты, журнал).
type SessionEvent struct {
	Kind        SessionEventKind
	Environment string
	At          time.Time
	Err         error
}
