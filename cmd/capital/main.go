package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"capital_bot/internal/modules/capital"
	capsvc "capital_bot/internal/modules/capital/service"
	"capital_bot/internal/modules/config"
	"capital_bot/internal/modules/health"
	"capital_bot/internal/modules/journal"
	"capital_bot/internal/modules/postgres"
	"capital_bot/internal/modules/stream"
	streamsvc "capital_bot/internal/modules/stream/service"
	"capital_bot/internal/notify"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const usage = `usage:
  capital history --epic EPIC --resolution RES --from YYYY-MM-DDTHH:MM:SS [--to ...] [--format json|yaml]
  capital serve [--epics A,B]

common flags:
  --config-dir DIR   directory with settings.yaml / .secrets.yaml / .env`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "history":
		err = runHistory(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		err = errors.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "capital:", err)
		os.Exit(1)
	}
}

type historyArgs struct {
	configDir  string
	epic       string
	resolution string
	from       string
	to         string
	format     string
}

func parseHistory(args []string) (historyArgs, error) {
	var a historyArgs
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.StringVar(&a.configDir, "config-dir", "", "config directory")
	fs.StringVar(&a.epic, "epic", "", "instrument epic")
	fs.StringVar(&a.resolution, "resolution", "", "MINUTE, MINUTE_5, MINUTE_15, MINUTE_30, HOUR, HOUR_4, DAY, WEEK")
	fs.StringVar(&a.from, "from", "", "start, YYYY-MM-DDTHH:MM:SS")
	fs.StringVar(&a.to, "to", "", "end, YYYY-MM-DDTHH:MM:SS (default: now)")
	fs.StringVar(&a.format, "format", formatJSON, "json | yaml")
	if err := fs.Parse(args); err != nil {
		return a, err
	}
	if a.format != formatJSON && a.format != formatYAML {
		return a, errors.Errorf("unknown format %q", a.format)
	}
	// до логина: битые аргументы не должны открывать сессию
	if a.epic == "" {
		return a, errors.New("--epic is required")
	}
	if _, err := capsvc.ParseResolution(a.resolution); err != nil {
		return a, err
	}
	if _, err := capsvc.ParseTimestamp("from", a.from); err != nil {
		return a, err
	}
	if a.to != "" {
		if _, err := capsvc.ParseTimestamp("to", a.to); err != nil {
			return a, err
		}
	}
	return a, nil
}

func runHistory(args []string) error {
	a, err := parseHistory(args)
	if err != nil {
		return err
	}

	var client *capsvc.Client
	app := fx.New(
		baseOptions(config.Source{Dir: a.configDir}),
		capital.Module(),
		fx.Populate(&client),
	)
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(ctx) }()

	series, err := client.GetHistoricalPrices(ctx, a.epic, a.resolution, a.from, a.to)
	if err != nil {
		return err
	}
	return writeSeries(os.Stdout, a.format, series)
}

type serveArgs struct {
	configDir string
	epics     []string
}

func parseServe(args []string) (serveArgs, error) {
	var a serveArgs
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&a.configDir, "config-dir", "", "config directory")
	fs.StringSliceVar(&a.epics, "epics", nil, "stream quotes for these epics to the log")
	if err := fs.Parse(args); err != nil {
		return a, err
	}
	for i := range a.epics {
		a.epics[i] = strings.TrimSpace(a.epics[i])
	}
	return a, nil
}

func runServe(args []string) error {
	a, err := parseServe(args)
	if err != nil {
		return err
	}

	app := fx.New(
		baseOptions(config.Source{Dir: a.configDir}),
		postgres.Module(),
		journal.Module(),
		notify.Module(),
		health.Module(),
		capital.Module(),
		stream.Module(),
		fx.Invoke(func(lc fx.Lifecycle, s *streamsvc.Streamer, l *zap.Logger) {
			if len(a.epics) == 0 {
				return
			}
			logQuotes(lc, s, a.epics, l)
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	// ждёт SIGINT/SIGTERM, затем OnStop: Close сессии, остановка health и т.д.
	app.Run()
	return nil
}

// logQuotes пишет котировки в лог, пока жив app. Хук регистрируется после
// capital.Module, поэтому сессия к этому моменту уже открыта.
func logQuotes(lc fx.Lifecycle, s *streamsvc.Streamer, epics []string, l *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			quotes, err := s.Quotes(ctx, epics)
			if err != nil {
				return err
			}
			go func() {
				for q := range quotes {
					l.Info("quote",
						zap.String("epic", q.Epic),
						zap.Float64("bid", q.Bid),
						zap.Float64("ofr", q.Ofr),
						zap.Time("ts", q.Timestamp),
					)
				}
				l.Info("quote stream ended")
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
