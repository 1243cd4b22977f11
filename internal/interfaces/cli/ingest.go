package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/pkg/errors"
)

type ingestOptions struct {
	categories     []string
	snapshotID     int64
	file           string
	force          bool
	forceMark      bool
	preview        bool
	byYear         bool
	minYear        int
	maxYear        int
	startYear      int
	skipYearFilter bool
	stride         int
	onlyActive     bool
	limit          int
}

// NewIngestCmd creates the ingest command.
func NewIngestCmd() *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Reconcile the latest unprocessed snapshot of each category",
		Long: `Reconcile catalogue snapshots into the registry.

By default the newest unprocessed snapshot of every category is processed.
--snapshot-id processes one registered snapshot; --file registers a local
file (or s3:// object) for a single category first.  --preview performs every
read and decision but writes nothing.`,
		Example: `  ridsync ingest
  ridsync ingest --categories invention,utility_model --by-year --min-year 2015
  ridsync ingest --categories software --file ./export.csv --preview -o table`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			runOpts, err := opts.runOptions()
			if err != nil {
				return err
			}
			return runIngest(cmd, cliCtx, runOpts)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.categories, "categories", nil, "categories to process (default: all)")
	f.Int64Var(&opts.snapshotID, "snapshot-id", 0, "process exactly this snapshot")
	f.StringVar(&opts.file, "file", "", "register and process this snapshot file; needs one category")
	f.BoolVar(&opts.force, "force", false, "update records even when the snapshot is older than the stored data")
	f.BoolVar(&opts.forceMark, "force-mark", false, "mark snapshots processed even when rows failed")
	f.BoolVar(&opts.preview, "preview", false, "read and decide everything, write nothing")
	f.BoolVar(&opts.byYear, "by-year", false, "process one registration year at a time")
	f.IntVar(&opts.minYear, "min-year", 0, "lowest registration year (by-year mode)")
	f.IntVar(&opts.maxYear, "max-year", 0, "highest registration year (by-year mode)")
	f.IntVar(&opts.startYear, "start-year", 0, "resume from this year (by-year mode)")
	f.BoolVar(&opts.skipYearFilter, "skip-year-filter", false, "ignore --min-year, --max-year and --start-year")
	f.IntVar(&opts.stride, "stride", 0, "process every Nth year (by-year mode)")
	f.BoolVar(&opts.onlyActive, "only-active", false, "only records flagged as active")
	f.IntVar(&opts.limit, "limit", 0, "cap rows per year, or per snapshot in whole mode")
	return cmd
}

func (o *ingestOptions) runOptions() (ingest.RunOptions, error) {
	run := ingest.RunOptions{
		SnapshotID: o.snapshotID,
		File:       o.file,
		Force:      o.force,
		ForceMark:  o.forceMark,
		Preview:    o.preview,
		Partition: ingest.PartitionOptions{
			ByYear:         o.byYear,
			MinYear:        o.minYear,
			MaxYear:        o.maxYear,
			StartYear:      o.startYear,
			SkipYearFilter: o.skipYearFilter,
			Stride:         o.stride,
			OnlyActive:     o.onlyActive,
			Limit:          o.limit,
		},
	}
	for _, raw := range o.categories {
		c, err := registry.ParseCategory(raw)
		if err != nil {
			return run, err
		}
		run.Categories = append(run.Categories, c)
	}

	switch {
	case o.file != "" && o.snapshotID != 0:
		return run, errors.InvalidParam("--file and --snapshot-id are mutually exclusive")
	case o.file != "" && len(run.Categories) != 1:
		return run, errors.InvalidParam("--file needs exactly one category")
	case o.snapshotID < 0:
		return run, errors.InvalidParam("--snapshot-id must be positive")
	case o.stride < 0 || o.limit < 0:
		return run, errors.InvalidParam("--stride and --limit must not be negative")
	case o.minYear != 0 && o.maxYear != 0 && o.minYear > o.maxYear:
		return run, errors.Newf(errors.CodeInvalidParam, "--min-year %d is after --max-year %d", o.minYear, o.maxYear)
	}
	return run, nil
}

func runIngest(cmd *cobra.Command, cliCtx *CLIContext, opts ingest.RunOptions) error {
	rt, err := openRuntime(cmd, cliCtx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.Metrics != nil {
		defer rt.Metrics.TrackRun("cli")()
	}
	report, runErr := rt.Service.Run(cmd.Context(), opts)
	if report != nil {
		if err := PrintResult(cmd, reportView{report}); err != nil {
			cliCtx.Logger.Warn("failed to print report", logging.Err(err))
		}
	}
	return runErr
}
