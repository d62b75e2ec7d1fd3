package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/auraxis/internal/config"
	"github.com/nextlevelbuilder/auraxis/internal/sink"
)

func doctorCmd() *cobra.Command {
	var online bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context(), cmd.OutOrStdout(), online)
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "also dial the push service and enabled sinks")
	return cmd
}

func runDoctor(ctx context.Context, out io.Writer, online bool) {
	fmt.Fprintln(out, "auraxis doctor")
	fmt.Fprintf(out, "  Version:  %s\n", Version)
	fmt.Fprintf(out, "  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(out, "  Go:       %s\n", runtime.Version())
	fmt.Fprintln(out)

	cfgPath := resolveConfigPath()
	fmt.Fprintf(out, "  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Fprintln(out, " (NOT FOUND, using defaults)")
	} else {
		fmt.Fprintln(out, " (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(out, "  Config load error: %s\n", err)
		return
	}
	masked := cfg.MaskedCopy()

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Push:")
	fmt.Fprintf(out, "    %-14s %s\n", "Endpoint:", cfg.Push.Endpoint)
	fmt.Fprintf(out, "    %-14s %s\n", "Environment:", cfg.Push.Environment)
	if cfg.Push.ServiceID == "" {
		fmt.Fprintf(out, "    %-14s (not configured)\n", "Service ID:")
	} else {
		fmt.Fprintf(out, "    %-14s %s\n", "Service ID:", masked.Push.ServiceID)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "    %-14s %s\n", "Validation:", strings.ReplaceAll(err.Error(), "\n", "; "))
	} else {
		fmt.Fprintf(out, "    %-14s OK\n", "Validation:")
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Subscription:")
	fmt.Fprintf(out, "    %-14s %s\n", "Events:", listOrNone(cfg.Subscription.Events))
	fmt.Fprintf(out, "    %-14s %s\n", "Characters:", listOrNone(cfg.Subscription.Characters))
	fmt.Fprintf(out, "    %-14s %s\n", "Worlds:", listOrNone(cfg.Subscription.Worlds))
	if _, err := cfg.Subscription.Settings(); err != nil {
		fmt.Fprintf(out, "    %-14s %s\n", "Error:", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Sinks:")
	checkSink(out, "stdout", cfg.Sinks.Stdout.Enabled, "")
	checkSink(out, "sqlite", cfg.Sinks.SQLite.Enabled, cfg.Sinks.SQLite.Path)
	checkSink(out, "redis", cfg.Sinks.Redis.Enabled, cfg.Sinks.Redis.Addr)

	if online {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Connectivity:")
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		report(out, "push", checkPush(ctx, cfg))
		if cfg.Sinks.SQLite.Enabled {
			report(out, "sqlite", checkSQLite(ctx, cfg.Sinks.SQLite.Path))
		}
		if cfg.Sinks.Redis.Enabled {
			report(out, "redis", checkRedis(ctx, cfg.Sinks.Redis))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Doctor check complete.")
}

func listOrNone(v []string) string {
	if len(v) == 0 {
		return "(none)"
	}
	return strings.Join(v, ", ")
}

func checkSink(out io.Writer, name string, enabled bool, target string) {
	status := "disabled"
	if enabled {
		status = "enabled"
		if target != "" {
			status += " (" + target + ")"
		}
	}
	fmt.Fprintf(out, "    %-14s %s\n", name+":", status)
}

func report(out io.Writer, name string, err error) {
	if err != nil {
		fmt.Fprintf(out, "    %-14s FAILED: %s\n", name+":", err)
		return
	}
	fmt.Fprintf(out, "    %-14s OK\n", name+":")
}

func checkPush(ctx context.Context, cfg *config.Config) error {
	rt, err := cfg.Realtime()
	if err != nil {
		return err
	}
	url, err := rt.URL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	return conn.Close()
}

func checkSQLite(ctx context.Context, path string) error {
	a, err := sink.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer a.Close()
	_, err = a.Count(ctx, "")
	return err
}

func checkRedis(ctx context.Context, cfg config.RedisSinkConfig) error {
	r, err := sink.NewRedis(ctx, sink.RedisOptions{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Prefix:   cfg.Prefix,
	})
	if err != nil {
		return err
	}
	return r.Close()
}
