package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/pkg/errors"
)

type listenOptions struct {
	forceMark  bool
	byYear     bool
	onlyActive bool
}

func (o listenOptions) runOptions() ingest.RunOptions {
	return ingest.RunOptions{
		ForceMark: o.forceMark,
		Partition: ingest.PartitionOptions{ByYear: o.byYear, OnlyActive: o.onlyActive},
	}
}

func (o *listenOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.forceMark, "force-mark", false, "mark snapshots processed even when rows failed")
	cmd.Flags().BoolVar(&o.byYear, "by-year", false, "process one registration year at a time")
	cmd.Flags().BoolVar(&o.onlyActive, "only-active", false, "only records flagged as active")
}

// NewListenCmd creates the listen command.
func NewListenCmd() *cobra.Command {
	opts := &listenOptions{}
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Ingest snapshots as upload events arrive on Kafka",
		Long: `Consume snapshot-uploaded events from the configured upload topic.  Each
event registers its snapshot and runs the ingest for that category.  A run
that fails leaves the snapshot unprocessed for the next scheduled run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			rt, err := openRuntime(cmd, cliCtx)
			if err != nil {
				return err
			}
			defer rt.Close()
			return consumeUploads(ctx, cliCtx, rt, newSerialRunner(rt.Service), opts.runOptions())
		},
	}
	opts.bind(cmd)
	return cmd
}

func consumeUploads(ctx context.Context, cliCtx *CLIContext, rt *Runtime, runner *serialRunner, opts ingest.RunOptions) error {
	cfg := cliCtx.Config.Kafka
	if !cfg.Enabled {
		return errors.InvalidParam("listening for uploads needs the kafka section enabled")
	}
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfigFrom(cfg), cliCtx.Logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	listener := kafka.NewUploadListener(runner, opts, cliCtx.Logger)
	handle := listener.Handle
	if rt.Metrics != nil {
		handle = func(ctx context.Context, msg *kafka.Message) error {
			defer rt.Metrics.TrackRun("upload")()
			return listener.Handle(ctx, msg)
		}
	}
	err = consumer.Run(ctx, handle)
	processed, failed := consumer.Stats()
	cliCtx.Logger.Info("upload listener stopped",
		logging.Int64("processed", processed), logging.Int64("failed", failed))
	return err
}

// serialRunner keeps scheduled and event-driven runs of one process from
// overlapping.  The Redis lock only guards against other processes.
type serialRunner struct {
	mu  sync.Mutex
	svc *ingest.Service
}

func newSerialRunner(svc *ingest.Service) *serialRunner {
	return &serialRunner{svc: svc}
}

func (r *serialRunner) Run(ctx context.Context, opts ingest.RunOptions) (*ingest.RunReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.svc.Run(ctx, opts)
}

func (r *serialRunner) IngestUpload(ctx context.Context, category registry.Category, sourceURI string, uploadedAt time.Time, opts ingest.RunOptions) (*ingest.RunReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.svc.IngestUpload(ctx, category, sourceURI, uploadedAt, opts)
}
