// Command balancebeam is an HTTP/1.1 reverse proxy and load balancer.
//
// Its CLI is a single cobra root command with pflag-bound flags (it
// has exactly one mode of operation, so there are no subcommands).
// Startup stands up logging, tunes GOMAXPROCS and GOMEMLIMIT from the
// cgroup, then enters the accept loop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"golang.org/x/sync/errgroup"

	"github.com/balancebeam/balancebeam/internal/admin"
	"github.com/balancebeam/balancebeam/internal/config"
	"github.com/balancebeam/balancebeam/internal/healthcheck"
	"github.com/balancebeam/balancebeam/internal/logging"
	"github.com/balancebeam/balancebeam/internal/proxy"
	"github.com/balancebeam/balancebeam/internal/ratelimit"
	"github.com/balancebeam/balancebeam/internal/upstream"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		bind            string
		upstreams       []string
		healthInterval  int
		healthPath      string
		maxReqPerMinute int64
		configFile      string
		logFile         string
		logRollMB       int
		adminBind       string
		debugLogging    bool
	)

	cmd := &cobra.Command{
		Use:   "balancebeam",
		Short: "An HTTP/1.1 reverse proxy and load balancer",
		Long: `balancebeam accepts client HTTP/1.1 connections, distributes
requests across a configured set of upstream servers with active
health checking and passive failover, and enforces a fixed-window
per-client rate limit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &config.Config{
				Bind:                      bind,
				Upstreams:                 upstreams,
				ActiveHealthCheckInterval: healthInterval,
				ActiveHealthCheckPath:     healthPath,
				MaxRequestsPerMinute:      maxReqPerMinute,
				LogFile:                   logFile,
				LogRollMB:                 logRollMB,
				AdminBind:                 adminBind,
			}

			if configFile != "" {
				fileCfg, err := config.LoadFile(configFile)
				if err != nil {
					return err
				}
				// The file's values are the base; flags explicitly
				// passed on the command line override them.
				fileCfg.Merge(cfg, cmd.Flags().Changed)
				cfg = fileCfg
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cfg, debugLogging)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&bind, "bind", "", "Address to listen on, e.g. 127.0.0.1:8080 (required)")
	flags.StringSliceVar(&upstreams, "upstream", nil, "Upstream address host:port; may be repeated")
	flags.IntVar(&healthInterval, "active-health-check-interval", 0, "Seconds between active health checks (0 disables)")
	flags.StringVar(&healthPath, "active-health-check-path", "/", "Path used for active health check GET requests")
	flags.Int64Var(&maxReqPerMinute, "max-requests-per-minute", 0, "Max requests per client per 60s window (0 disables)")
	flags.StringVar(&configFile, "config", "", "Optional TOML config file; CLI flags override its values")
	flags.StringVar(&logFile, "log-file", "", "Optional path to roll process logs into, in addition to stderr")
	flags.IntVar(&logRollMB, "log-roll-mb", 100, "Roll the log file after this many megabytes")
	flags.StringVar(&adminBind, "admin-bind", "", "Optional address for the admin/metrics server (disabled if empty)")
	flags.BoolVar(&debugLogging, "debug", false, "Enable debug-level logging")

	return cmd
}

func run(cfg *config.Config, debug bool) error {
	log, err := logging.New(logging.Options{File: cfg.LogFile, RollMB: cfg.LogRollMB, Debug: debug})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	// Match GOMAXPROCS and GOMEMLIMIT to the container's cgroup quota
	// rather than the host's full CPU/memory count.
	undo, err := maxprocs.Set(maxprocs.Logger(log.Sugar().Infof))
	defer undo()
	if err != nil {
		log.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	_, _ = memlimit.SetGoMemLimitWithOpts(
		memlimit.WithLogger(slog.New(zapslog.NewHandler(log.Core()))),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)

	// Per spec.md section 5: the process ignores SIGINT so that a
	// Ctrl-C delivered to a terminal's process group only reaches
	// child processes, not the proxy itself. SIGTERM still initiates
	// an orderly shutdown.
	signal.Ignore(syscall.SIGINT)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	pool := upstream.NewPool(cfg.Upstreams)

	var limiter ratelimit.Allower
	g, gctx := errgroup.WithContext(ctx)

	if cfg.RateLimitEnabled() {
		rl := ratelimit.NewLimiter(cfg.MaxRequestsPerMinute)
		limiter = rl
		g.Go(func() error { return rl.Run(gctx) })
	} else {
		limiter = ratelimit.NoopLimiter{}
	}

	if cfg.HealthChecksEnabled() {
		worker := &healthcheck.Worker{
			Pool:     pool,
			Interval: time.Duration(cfg.ActiveHealthCheckInterval) * time.Second,
			Path:     cfg.ActiveHealthCheckPath,
			Log:      log,
		}
		g.Go(func() error { return worker.Run(gctx) })
	}

	if cfg.AdminBind != "" {
		adminSrv := &admin.Server{Pool: pool}
		adminLn, err := net.Listen("tcp", cfg.AdminBind)
		if err != nil {
			return fmt.Errorf("binding admin server: %w", err)
		}
		httpSrv := &http.Server{Handler: adminSrv.Handler()}
		g.Go(func() error {
			<-gctx.Done()
			return httpSrv.Close()
		})
		g.Go(func() error {
			err := httpSrv.Serve(adminLn)
			if gctx.Err() != nil || isServerClosed(err) {
				return nil
			}
			return err
		})
	}

	handler := &proxy.Handler{Pool: pool, RateLimiter: limiter, Log: log}
	listener := &proxy.Listener{Handler: handler, Log: log}

	ln, err := net.Listen("tcp", cfg.Bind)
	if err != nil {
		return fmt.Errorf("binding %s: %w", cfg.Bind, err)
	}

	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	log.Info("balancebeam starting",
		zap.String("bind", cfg.Bind),
		zap.Strings("upstreams", cfg.Upstreams),
		zap.Bool("health_checks", cfg.HealthChecksEnabled()),
		zap.Bool("rate_limit", cfg.RateLimitEnabled()),
	)

	g.Go(func() error {
		err := listener.Serve(ln)
		if gctx.Err() != nil {
			// Shutdown in progress: a closed-listener error here is
			// expected, not a failure.
			return nil
		}
		return err
	})

	return g.Wait()
}

// isServerClosed reports whether err is the sentinel returned by
// http.Server.Serve after Close, so shutdown isn't mistaken for a
// failure.
func isServerClosed(err error) bool {
	return err == http.ErrServerClosed
}
