package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	httpapi "github.com/turtacn/rid-registry/internal/interfaces/http"
	"github.com/turtacn/rid-registry/internal/interfaces/http/handlers"
	"github.com/turtacn/rid-registry/pkg/errors"
)

type serveOptions struct {
	listen   bool
	interval time.Duration
	// run options shared by scheduled and event-driven runs
	uploads listenOptions
}

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP server, optionally with scheduled and event-driven ingests",
		Long: `Serve /healthz, /readyz, the Prometheus endpoint, /v1/runs/last and
/v1/snapshots.  --interval runs a full ingest periodically; --listen also
consumes upload events.  Runs started by this process never overlap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if opts.interval < 0 {
				return errors.InvalidParam("--interval must not be negative")
			}
			return runServe(cmd, cliCtx, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.listen, "listen", false, "also consume snapshot upload events")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "run a full ingest at this interval (0 disables)")
	opts.uploads.bind(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, cliCtx *CLIContext, opts *serveOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	rt, err := openRuntime(cmd, cliCtx)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := cliCtx.Config
	log := cliCtx.Logger
	routes := httpapi.RouterConfig{
		Mode:          cfg.Server.Mode,
		HealthHandler: handlers.NewHealthHandler(Version, rt.Checks...),
		RunHandler:    handlers.NewRunHandler(rt.Service, rt.Snapshots),
		Logger:        log,
	}
	if rt.Collector != nil {
		routes.MetricsHandler = rt.Collector.Handler()
		routes.MetricsPath = cfg.Metrics.Path
		routes.HTTPObserver = rt.Metrics
	}
	srv := httpapi.NewServer(cfg.Server, httpapi.NewRouter(routes), log)
	runner := newSerialRunner(rt.Service)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop(context.Background())
	})
	if opts.listen {
		g.Go(func() error {
			return consumeUploads(gctx, cliCtx, rt, runner, opts.uploads.runOptions())
		})
	}
	if opts.interval > 0 {
		g.Go(func() error {
			runScheduled(gctx, rt, runner, opts.interval, opts.uploads.runOptions(), log)
			return nil
		})
	}
	return g.Wait()
}

// runScheduled starts a full ingest every interval until ctx ends.  A failed
// run is logged; its snapshots stay unprocessed for the next tick.
func runScheduled(ctx context.Context, rt *Runtime, runner *serialRunner, interval time.Duration, opts ingest.RunOptions, log logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info("scheduled ingest enabled", logging.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		done := func() {}
		if rt.Metrics != nil {
			done = rt.Metrics.TrackRun("schedule")
		}
		report, err := runner.Run(ctx, opts)
		done()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("scheduled ingest failed", logging.Err(err))
			continue
		}
		log.Info("scheduled ingest finished",
			logging.String("run_id", report.RunID), logging.Int("snapshots", len(report.Snapshots)))
	}
}
