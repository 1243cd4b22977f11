// Package storage resolves snapshot source URIs to readable streams.
package storage

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/pkg/errors"
)

// ObjectOpener opens s3:// references.
type ObjectOpener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Source opens local paths and file:// URIs itself and hands s3:// URIs to
// the object store.
type Source struct {
	objects ObjectOpener
	baseDir string
	logger  logging.Logger
}

// NewSource builds a Source.  objects may be nil when object storage is
// disabled; relative paths resolve against baseDir.
func NewSource(objects ObjectOpener, baseDir string, logger logging.Logger) *Source {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Source{objects: objects, baseDir: baseDir, logger: logger}
}

var _ ingest.SnapshotSource = (*Source)(nil)

func (s *Source) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, errors.InvalidParam("empty snapshot uri")
	}
	switch {
	case strings.HasPrefix(uri, "s3://"):
		if s.objects == nil {
			return nil, errors.New(errors.CodeStorageError, "object storage is not configured").WithDetail(uri)
		}
		return s.objects.Open(ctx, uri)
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidParam, "malformed file uri")
		}
		return s.openFile(u.Path)
	case strings.Contains(uri, "://"):
		return nil, errors.InvalidParam("unsupported snapshot uri scheme").WithDetail(uri)
	default:
		return s.openFile(uri)
	}
}

func (s *Source) openFile(path string) (io.ReadCloser, error) {
	if !filepath.IsAbs(path) && s.baseDir != "" {
		path = filepath.Join(s.baseDir, path)
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(err, errors.CodeNotFound, "snapshot file not found").WithDetail(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to open snapshot file")
	}
	s.logger.Debug("snapshot file opened", logging.String("path", path))
	return f, nil
}
