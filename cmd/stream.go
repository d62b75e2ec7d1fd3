package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/auraxis/internal/bus"
	"github.com/nextlevelbuilder/auraxis/internal/config"
	"github.com/nextlevelbuilder/auraxis/internal/realtime"
	"github.com/nextlevelbuilder/auraxis/internal/relay"
	"github.com/nextlevelbuilder/auraxis/internal/sink"
)

var errStreamEnded = errors.New("event stream ended")

func streamCmd() *cobra.Command {
	var (
		eventNames  []string
		worlds      []string
		characters  []string
		logicalAnd  bool
		metricsAddr string
		ordered     bool
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Connect to the push service and write events to the configured sinks",
		Example: `  auraxis stream --event PlayerLogin --world Emerald
  auraxis stream --event Death --character 5428010618015189713 --metrics :9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("event") {
				cfg.Subscription.Events = eventNames
			}
			if flags.Changed("world") {
				cfg.Subscription.Worlds = worlds
			}
			if flags.Changed("character") {
				cfg.Subscription.Characters = characters
			}
			if flags.Changed("logical-and") {
				cfg.Subscription.LogicalAnd = &logicalAnd
			}
			if flags.Changed("metrics") {
				cfg.Metrics.Listen = metricsAddr
			}
			if flags.Changed("ordered") {
				cfg.Push.OrderedDelivery = ordered
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			setupLogging(cfg.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runStream(ctx, cfgPath, cfg)
		},
	}

	cmd.Flags().StringSliceVar(&eventNames, "event", nil, `event names to subscribe to, or "all"`)
	cmd.Flags().StringSliceVar(&worlds, "world", nil, `world names or ids, or "all"`)
	cmd.Flags().StringSliceVar(&characters, "character", nil, `character ids, or "all"`)
	cmd.Flags().BoolVar(&logicalAnd, "logical-and", false, "require both the character and world filters to match")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&ordered, "ordered", false, "deliver events in arrival order")
	return cmd
}

func runStream(ctx context.Context, cfgPath string, cfg *config.Config) error {
	rtCfg, err := cfg.Realtime()
	if err != nil {
		return err
	}
	settings, err := cfg.Subscription.Settings()
	if err != nil {
		return err
	}

	reg := newRegistry()
	tp, shutdownTracing := initTracing(ctx, cfg)
	defer shutdownTracing()

	opts := []realtime.Option{
		realtime.WithMetrics(realtime.NewMetrics(reg)),
		realtime.WithSubscription(settings),
	}
	if tp != nil {
		opts = append(opts, realtime.WithTracerProvider(tp))
	}
	client := realtime.New(rtCfg, opts...)
	defer client.Close()

	b, err := newBus(cfg.Dedupe)
	if err != nil {
		return err
	}
	sinks, err := openSinks(ctx, cfg.Sinks)
	if err != nil {
		return err
	}
	var rl *relay.Server
	if cfg.Sinks.Relay.Enabled {
		rl = relay.New(relay.Config{
			ConnectionsPerMinute: cfg.Sinks.Relay.ConnectionsPerMinute,
			Burst:                cfg.Sinks.Relay.Burst,
			ClientBuffer:         cfg.Sinks.Relay.ClientBuffer,
			AllowedOrigins:       cfg.Sinks.Relay.AllowedOrigins,
		}, reg)
		sinks = append(sinks, rl)
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				slog.Warn("sink close", "sink", s.Name(), "error", err)
			}
		}
	}()
	if len(sinks) == 0 {
		slog.Warn("no sinks enabled, events will only be counted")
	}
	for _, s := range sinks {
		sink.Attach(b, s)
	}

	if _, err := os.Stat(cfgPath); err == nil {
		stopWatch, err := watchSubscription(cfgPath, cfg, client)
		if err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	events, err := client.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	slog.Info("streaming", "environment", rtCfg.Environment, "sinks", len(sinks))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := b.Run(gctx, events); err != nil {
			return err
		}
		return errStreamEnded
	})
	if rl != nil {
		mux := http.NewServeMux()
		mux.Handle(cfg.Sinks.Relay.Path, rl)
		g.Go(func() error {
			return serveHTTP(gctx, "relay", cfg.Sinks.Relay.Listen, mux)
		})
	}
	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Listen, cfg.Metrics.Path, reg, client)
		})
	}

	err = g.Wait()
	switch {
	case ctx.Err() != nil:
		slog.Info("shutting down")
		return nil
	case errors.Is(err, errStreamEnded):
		return fmt.Errorf("%w: reconnecting gave up", errStreamEnded)
	default:
		return err
	}
}

func newBus(cfg config.DedupeConfig) (*bus.EventBus, error) {
	window, err := cfg.WindowDuration()
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		return bus.New(), nil
	}
	return bus.New(bus.WithDedupe(bus.NewDedupeCache(window, cfg.MaxEntries))), nil
}

func openSinks(ctx context.Context, cfg config.SinksConfig) ([]sink.Sink, error) {
	var sinks []sink.Sink
	fail := func(err error) ([]sink.Sink, error) {
		for _, s := range sinks {
			s.Close()
		}
		return nil, err
	}

	if cfg.Stdout.Enabled {
		sinks = append(sinks, sink.NewJSONLines(os.Stdout))
	}
	if cfg.SQLite.Enabled {
		a, err := sink.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, a)
	}
	if cfg.Redis.Enabled {
		r, err := sink.NewRedis(ctx, sink.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, r)
	}
	return sinks, nil
}

// watchSubscription re-applies the subscription section whenever the config
// file changes. Other sections need a restart.
func watchSubscription(path string, current *config.Config, client *realtime.Client) (func(), error) {
	w, err := config.NewWatcher(path, current)
	if err != nil {
		return nil, err
	}
	w.OnChange(func(next *config.Config) {
		settings, err := next.Subscription.Settings()
		if err != nil {
			slog.Error("subscription reload rejected", "error", err)
			return
		}
		if err := client.Subscribe(settings); err != nil {
			slog.Warn("subscription reload not sent, will apply on next handshake", "error", err)
			return
		}
		slog.Info("subscription reloaded")
	})
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w.Stop, nil
}
