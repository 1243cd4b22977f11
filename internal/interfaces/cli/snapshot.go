package cli

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/storage/minio"
	"github.com/turtacn/rid-registry/pkg/errors"
)

// NewSnapshotCmd creates the snapshot command group.
func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Register and inspect catalogue snapshots",
	}
	cmd.AddCommand(newSnapshotRegisterCmd(), newSnapshotListCmd())
	return cmd
}

type registerOptions struct {
	upload     bool
	uploadedAt string
}

func newSnapshotRegisterCmd() *cobra.Command {
	opts := &registerOptions{}
	cmd := &cobra.Command{
		Use:   "register <category> <source>",
		Short: "Register a snapshot so the next ingest run picks it up",
		Long: `Register a catalogue snapshot.  source is a local path, a file:// URI or
an s3://bucket/key URI.  With --upload the local file is first copied into the
snapshot bucket and the object URI is registered instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			category, err := registry.ParseCategory(args[0])
			if err != nil {
				return err
			}
			uploadedAt, err := parseUploadedAt(opts.uploadedAt)
			if err != nil {
				return err
			}
			return runSnapshotRegister(cmd, cliCtx, category, args[1], uploadedAt, opts.upload)
		},
	}
	cmd.Flags().BoolVar(&opts.upload, "upload", false, "upload the local file to object storage first")
	cmd.Flags().StringVar(&opts.uploadedAt, "uploaded-at", "", "upload time of the export (default: now)")
	return cmd
}

func parseUploadedAt(v string) (time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return time.Time{}, nil
	}
	t, err := dateparse.ParseIn(v, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.CodeInvalidParam, "unparsable --uploaded-at")
	}
	return t, nil
}

func runSnapshotRegister(cmd *cobra.Command, cliCtx *CLIContext, category registry.Category, source string, uploadedAt time.Time, upload bool) error {
	rt, err := openRuntime(cmd, cliCtx)
	if err != nil {
		return err
	}
	defer rt.Close()
	ctx := cmd.Context()

	switch {
	case upload:
		if rt.Objects == nil {
			return errors.New(errors.CodeStorageError, "--upload needs object storage; enable the minio section")
		}
		f, err := os.Open(source)
		if err != nil {
			return errors.Wrap(err, errors.CodeInvalidParam, "cannot open snapshot file")
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return errors.Wrap(err, errors.CodeInvalidParam, "cannot stat snapshot file")
		}
		key := minio.ObjectKey(string(category), filepath.Base(source), time.Now())
		if source, err = rt.Objects.Upload(ctx, key, f, info.Size(), ""); err != nil {
			return err
		}
	case !strings.Contains(source, "://"):
		abs, err := filepath.Abs(source)
		if err != nil {
			return errors.Wrap(err, errors.CodeInvalidParam, "cannot resolve snapshot path")
		}
		source = abs
	}

	snap, err := rt.Service.RegisterSnapshot(ctx, category, source, uploadedAt)
	if err != nil {
		return err
	}
	return PrintResult(cmd, snapshotList{snap})
}

type listOptions struct {
	category    string
	unprocessed bool
	limit       int
}

func newSnapshotListCmd() *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			filter := registry.SnapshotFilter{OnlyUnprocessed: opts.unprocessed, Limit: opts.limit}
			if opts.category != "" {
				if filter.Category, err = registry.ParseCategory(opts.category); err != nil {
					return err
				}
			}
			if opts.limit < 0 {
				return errors.InvalidParam("--limit must not be negative")
			}
			return runSnapshotList(cmd, cliCtx, filter)
		},
	}
	cmd.Flags().StringVar(&opts.category, "category", "", "only this category")
	cmd.Flags().BoolVar(&opts.unprocessed, "unprocessed", false, "only snapshots not yet processed")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "maximum number of snapshots (0 = all)")
	return cmd
}

func runSnapshotList(cmd *cobra.Command, cliCtx *CLIContext, filter registry.SnapshotFilter) error {
	rt, err := openRuntime(cmd, cliCtx)
	if err != nil {
		return err
	}
	defer rt.Close()

	snapshots, err := rt.Snapshots.List(cmd.Context(), filter)
	if err != nil {
		return err
	}
	return PrintResult(cmd, snapshotList(snapshots))
}
