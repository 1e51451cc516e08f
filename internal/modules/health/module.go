package health

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	capital "capital_bot/internal/modules/capital/service"
	"capital_bot/internal/modules/config"
	"capital_bot/internal/modules/health/service"

	"github.com/bytedance/sonic"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Addr string // например ":8080"
}

func NewConfig(cfg *config.Config) Config {
	return Config{Addr: cfg.Health.Addr}
}

// KeepaliveSwitch: рубильник keepalive сессии, см. /keepalive.
type KeepaliveSwitch interface {
	SetKeepalive(enabled bool)
	KeepaliveRunning() bool
}

var _ KeepaliveSwitch = (*capital.Client)(nil)

type healthResponse struct {
	Connected           bool  `json:"connected"`
	Keepalive           bool  `json:"keepalive"`
	UptimeSec           int64 `json:"uptimeSec"`
	LastPingUnix        int64 `json:"lastPingUnix"`
	PingFailures        int64 `json:"pingFailures"`
	ConsecutiveFailures int64 `json:"consecutiveFailures"`
}

func NewMux(state *service.State, ka KeepaliveSwitch) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// readiness: сессия открыта
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Connected:           state.Connected(),
			Keepalive:           ka.KeepaliveRunning(),
			UptimeSec:           int64(state.Uptime().Seconds()),
			PingFailures:        state.PingFailures(),
			ConsecutiveFailures: state.ConsecutiveFailures(),
		}
		if t := state.LastPing(); !t.IsZero() {
			resp.LastPingUnix = t.Unix()
		}
		body, err := sonic.Marshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	// GET отдаёт состояние, POST ?enabled=true|false переключает keepalive
	mux.HandleFunc("/keepalive", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
		case http.MethodPost:
			enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
			if err != nil {
				http.Error(w, "enabled must be true or false", http.StatusBadRequest)
				return
			}
			ka.SetKeepalive(enabled)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, _ := sonic.Marshal(map[string]bool{"running": ka.KeepaliveRunning()})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			logger.Info("health server started", zap.String("addr", ln.Addr().String()))
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewConfig,
			func(c *capital.Client) KeepaliveSwitch { return c },
			NewMux,
			fx.Annotate(
				func(s *service.State) capital.EventSink { return s },
				fx.ResultTags(`group:"session_sinks"`),
			),
		),
		fx.Invoke(RunHTTP),
	)
}
