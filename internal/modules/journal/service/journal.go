package service

import (
	"context"
	"sync"
	"time"

	"capital_bot/internal/models"
	"capital_bot/pkg/db"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	writeTimeout = 5 * time.Second
	queueSize    = 256
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS session_events (
	id          BIGSERIAL PRIMARY KEY,
	kind        TEXT        NOT NULL,
	environment TEXT        NOT NULL,
	detail      TEXT        NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
)`

const insertEventSQL = `
INSERT INTO session_events (kind, environment, detail, created_at)
VALUES ($1, $2, $3, $4)`

// Journal пишет события сессии в session_events из своей горутины: SessionEvent
// не ждёт базу и не тормозит keepalive. Ошибки записи только логируются.
type Journal struct {
	tx     db.TxManager
	logger *zap.Logger

	queue    chan models.SessionEvent
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewJournal(tx db.TxManager, logger *zap.Logger) *Journal {
	return &Journal{
		tx:      tx,
		logger:  logger,
		queue:   make(chan models.SessionEvent, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Migrate создаёт таблицу, если её нет.
func (j *Journal) Migrate(ctx context.Context) error {
	return j.tx.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, createTableSQL)
		return errors.Wrap(err, "create session_events")
	})
}

// SessionEvent ставит событие в очередь; при переполнении событие теряется.
func (j *Journal) SessionEvent(_ context.Context, ev models.SessionEvent) {
	select {
	case j.queue <- ev:
	default:
		j.logger.Warn("journal queue is full, event dropped", zap.String("kind", string(ev.Kind)))
	}
}

// Start запускает запись очереди.
func (j *Journal) Start() {
	go func() {
		defer close(j.stopped)
		for {
			select {
			case <-j.done:
				j.drain()
				return
			case ev := <-j.queue:
				j.write(ev)
			}
		}
	}()
}

// Stop дописывает очередь и ждёт выхода горутины, но не дольше ctx.
func (j *Journal) Stop(ctx context.Context) error {
	j.stopOnce.Do(func() { close(j.done) })
	select {
	case <-j.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Journal) drain() {
	for {
		select {
		case ev := <-j.queue:
			j.write(ev)
		default:
			return
		}
	}
}

func (j *Journal) write(ev models.SessionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := j.Append(ctx, ev); err != nil {
		j.logger.Warn("journal write failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

func (j *Journal) Append(ctx context.Context, ev models.SessionEvent) error {
	detail := ""
	if ev.Err != nil {
		detail = ev.Err.Error()
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return j.tx.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, insertEventSQL, string(ev.Kind), ev.Environment, detail, at.UTC())
		return errors.Wrap(err, "insert session event")
	})
}
