package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/pkg/errors"
)

// Scheme prefixes object references stored as snapshot source URIs.
const Scheme = "s3"

var ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")

// ObjectInfo describes one stored snapshot export.
type ObjectInfo struct {
	Key          string
	URI          string
	Size         int64
	LastModified time.Time
}

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != Scheme {
		return "", "", errors.InvalidParam("not an s3 uri").WithDetail(uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", errors.InvalidParam("s3 uri needs a bucket and a key").WithDetail(uri)
	}
	return u.Host, key, nil
}

// FormatURI is the inverse of ParseURI.
func FormatURI(bucket, key string) string {
	return fmt.Sprintf("%s://%s/%s", Scheme, bucket, key)
}

// ObjectKey names an uploaded export: <category>/<utc timestamp>-<file>.
func ObjectKey(category, filename string, at time.Time) string {
	return path.Join(category, at.UTC().Format("20060102T150405Z")+"-"+path.Base(filename))
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// Open streams the object behind an s3:// URI.  A missing object yields a
// NotFound error.
func (c *Client) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if _, err := c.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound.WithDetail(uri)
		}
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to stat object")
	}
	obj, err := c.api.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to download object")
	}
	c.logger.Debug("snapshot object opened", logging.String("uri", uri))
	return obj, nil
}

// Upload stores r under key in the snapshot bucket and returns its URI.
// size may be -1 when unknown.
func (c *Client) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.InvalidParam("object key required")
	}
	if contentType == "" {
		contentType = "text/csv"
	}
	opts := minio.PutObjectOptions{ContentType: contentType}
	if size < 0 {
		opts.PartSize = 16 * 1024 * 1024
	}
	info, err := c.api.PutObject(ctx, c.bucket, key, r, size, opts)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeStorageError, "upload failed")
	}
	uri := FormatURI(c.bucket, key)
	c.logger.Info("snapshot uploaded", logging.String("uri", uri), logging.Int64("size", info.Size))
	return uri, nil
}

// List returns the objects under prefix, at most limit when limit > 0.
func (c *Client) List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []ObjectInfo
	for obj := range c.api.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.CodeStorageError, "failed to list objects")
		}
		out = append(out, ObjectInfo{
			Key: obj.Key, URI: FormatURI(c.bucket, obj.Key),
			Size: obj.Size, LastModified: obj.LastModified,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
