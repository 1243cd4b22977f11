package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/pkg/errors"
)

// UploadIngester is the part of ingest.Service the listener drives.
type UploadIngester interface {
	IngestUpload(ctx context.Context, category registry.Category, sourceURI string, uploadedAt time.Time, opts ingest.RunOptions) (*ingest.RunReport, error)
}

// UploadListener turns snapshot-uploaded events into ingest runs.
type UploadListener struct {
	ingester UploadIngester
	opts     ingest.RunOptions
	logger   logging.Logger
}

// NewUploadListener builds a listener applying opts to every run.
func NewUploadListener(ingester UploadIngester, opts ingest.RunOptions, logger logging.Logger) *UploadListener {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &UploadListener{ingester: ingester, opts: opts, logger: logger}
}

// Handle is a MessageHandler.  Malformed events return an error.  A failed
// run is only logged: the snapshot is registered and stays unprocessed, so
// the next run picks it up.
func (l *UploadListener) Handle(ctx context.Context, msg *Message) error {
	env, err := DecodeEnvelope(msg.Value, EventTypeSnapshotUploaded)
	if err != nil {
		l.logger.Warn("ignoring upload event", logging.Err(err))
		return err
	}
	var payload SnapshotUploadedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "malformed upload payload")
	}
	category, err := registry.ParseCategory(payload.Category)
	if err != nil {
		l.logger.Warn("upload event for unknown category", logging.String("category", payload.Category))
		return err
	}

	report, err := l.ingester.IngestUpload(ctx, category, payload.SourceURI, payload.UploadedAt, l.opts)
	if err != nil {
		l.logger.Error("upload ingest failed",
			logging.String("event_id", env.EventID),
			logging.String("source_uri", payload.SourceURI),
			logging.Err(err))
		return nil
	}
	l.logger.Info("upload ingested",
		logging.String("event_id", env.EventID),
		logging.String("run_id", report.RunID),
		logging.Int("created", report.Totals.Created),
		logging.Int("updated", report.Totals.Updated))
	return nil
}
