package service

import (
	"context"
	"net/http"
	"time"

	"capital_bot/internal/models"
	"capital_bot/internal/modules/config"

	"go.uber.org/zap"
)

// Broker: единственный контракт клиента: жизненный цикл сессии и история цен.
type Broker interface {
	Open(ctx context.Context) (Session, error)
	Close(ctx context.Context)
	Ping(ctx context.Context) (LivenessResult, error)
	GetHistoricalPrices(ctx context.Context, epic, resolution, start, end string) (models.PriceSeries, error)
}

// Client: фасад над SessionManager и PriceFetcher, которые делят один transport.
type Client struct {
	*SessionManager
	*PriceFetcher
}

var _ Broker = (*Client)(nil)

type Options struct {
	BaseURL     string
	Environment string
	Credentials Credentials

	HTTPClient   *http.Client
	PingInterval time.Duration
	Keepalive    bool

	MaxPages          int
	PaginationTimeout time.Duration

	Logger *zap.Logger
	Sink   EventSink
}

func New(o Options) *Client {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 300 * time.Second
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 500
	}

	tr := &transport{baseURL: o.BaseURL, http: o.HTTPClient, logger: o.Logger}
	sm := newSessionManager(tr, o.Credentials, o.Environment, o.PingInterval, o.Keepalive, o.Sink, o.Logger)
	return &Client{
		SessionManager: sm,
		PriceFetcher:   newPriceFetcher(tr, sm, o.MaxPages, o.PaginationTimeout, o.Logger),
	}
}

// NewClient: fx-провайдер: клиент из провалидированного конфига.
func NewClient(cfg *config.Config, logger *zap.Logger, sink EventSink) *Client {
	return New(Options{
		BaseURL:     cfg.BaseURL(),
		Environment: cfg.App.Environment,
		Credentials: Credentials{
			Identifier: cfg.Connection.User,
			Password:   cfg.Connection.APIPassword,
			APIKey:     cfg.Connection.APIKey,
		},
		HTTPClient:        &http.Client{Timeout: cfg.App.HTTPTimeout},
		PingInterval:      cfg.App.PingInterval,
		Keepalive:         cfg.App.Keepalive,
		MaxPages:          cfg.App.MaxPages,
		PaginationTimeout: cfg.App.PaginationTimeout,
		Logger:            logger.Named("capital"),
		Sink:              sink,
	})
}
