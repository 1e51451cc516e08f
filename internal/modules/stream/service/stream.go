package service

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"capital_bot/internal/models"
	capital "capital_bot/internal/modules/capital/service"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	destSubscribe = "marketData.subscribe"
	destQuote     = "quote"
	destPing      = "ping"

	quoteBuffer = 256
)

// Streamer: клиент стримингового API capital.com. Переподключения нет:
// при обрыве канал котировок закрывается.
type Streamer struct {
	url          string
	tokens       capital.TokenSource
	dialer       *websocket.Dialer
	pingInterval time.Duration
	logger       *zap.Logger

	correlation atomic.Int64
}

func NewStreamer(url string, tokens capital.TokenSource, pingInterval time.Duration, logger *zap.Logger) *Streamer {
	return &Streamer{
		url:          url,
		tokens:       tokens,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pingInterval: pingInterval,
		logger:       logger,
	}
}

type envelope struct {
	Destination   string `json:"destination"`
	CorrelationID string `json:"correlationId"`
	CST           string `json:"cst"`
	SecurityToken string `json:"securityToken"`
	Payload       any    `json:"payload,omitempty"`
}

type subscribePayload struct {
	Epics []string `json:"epics"`
}

type inbound struct {
	Status      string `json:"status"`
	Destination string `json:"destination"`
	Payload     struct {
		Epic      string  `json:"epic"`
		Product   string  `json:"product"`
		Bid       float64 `json:"bid"`
		BidQty    float64 `json:"bidQty"`
		Ofr       float64 `json:"ofr"`
		OfrQty    float64 `json:"ofrQty"`
		Timestamp int64   `json:"timestamp"` // ms
	} `json:"payload"`
}

// conn сериализует запись: gorilla допускает только одного писателя.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(v any) error {
	b, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Quotes подписывается на epics и отдаёт котировки, пока жив ctx и соединение.
func (s *Streamer) Quotes(ctx context.Context, epics []string) (<-chan models.Quote, error) {
	if len(epics) == 0 {
		return nil, &capital.ArgumentError{Name: "epics", Reason: "must not be empty"}
	}
	tokens, ok := s.tokens.Tokens()
	if !ok {
		return nil, capital.ErrNotConnected
	}

	ws, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, &capital.TransportError{Op: "stream.dial", Err: err}
	}
	c := &conn{ws: ws}

	if err := c.write(s.envelope(destSubscribe, tokens, subscribePayload{Epics: epics})); err != nil {
		_ = ws.Close()
		return nil, &capital.TransportError{Op: "stream.subscribe", Err: err}
	}
	s.logger.Info("stream subscribed", zap.Strings("epics", epics))

	out := make(chan models.Quote, quoteBuffer)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = ws.Close()
	}()
	go s.pingLoop(ctx, c, tokens, done)
	go func() {
		defer close(out)
		defer close(done)
		s.readLoop(ctx, c, out)
	}()

	return out, nil
}

func (s *Streamer) envelope(dest string, t capital.Tokens, payload any) envelope {
	return envelope{
		Destination:   dest,
		CorrelationID: strconv.FormatInt(s.correlation.Add(1), 10),
		CST:           t.CST,
		SecurityToken: t.SecurityToken,
		Payload:       payload,
	}
}

func (s *Streamer) pingLoop(ctx context.Context, c *conn, tokens capital.Tokens, done <-chan struct{}) {
	if s.pingInterval <= 0 {
		return
	}
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-t.C:
			if err := c.write(s.envelope(destPing, tokens, nil)); err != nil {
				s.logger.Warn("stream ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Streamer) readLoop(ctx context.Context, c *conn, out chan<- models.Quote) {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("stream closed", zap.Error(errors.Wrap(err, "read")))
			}
			return
		}

		var in inbound
		if err := sonic.Unmarshal(msg, &in); err != nil {
			s.logger.Debug("stream: bad frame", zap.Error(err))
			continue
		}
		if in.Destination != destQuote {
			if in.Status != "" && in.Status != "OK" {
				s.logger.Warn("stream: request rejected",
					zap.String("destination", in.Destination),
					zap.String("status", in.Status),
				)
			}
			continue
		}

		q := models.Quote{
			Epic:      in.Payload.Epic,
			Product:   in.Payload.Product,
			Bid:       in.Payload.Bid,
			BidQty:    in.Payload.BidQty,
			Ofr:       in.Payload.Ofr,
			OfrQty:    in.Payload.OfrQty,
			Timestamp: time.UnixMilli(in.Payload.Timestamp).UTC(),
		}
		select {
		case out <- q:
		case <-ctx.Done():
			return
		}
	}
}
