package minio

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

type MockMinIOAPI struct {
	mock.Mock
}

func (m *MockMinIOAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinIOAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockMinIOAPI) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	return args.Get(0).(<-chan minio.ObjectInfo)
}

func (m *MockMinIOAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

// GetObject cannot hand back a usable *minio.Object without a server, so
// only the error path is mocked.
func (m *MockMinIOAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return nil, args.Error(1)
}

func (m *MockMinIOAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func TestParseURI(t *testing.T) {
	bucket, key, err := ParseURI("s3://catalogue-snapshots/invention/2024.csv")
	require.NoError(t, err)
	assert.Equal(t, "catalogue-snapshots", bucket)
	assert.Equal(t, "invention/2024.csv", key)

	for _, bad := range []string{"/tmp/a.csv", "s3://bucket", "s3:///key", "http://b/k"} {
		_, _, err := ParseURI(bad)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam), bad)
	}
	assert.Equal(t, "s3://b/k/x.csv", FormatURI("b", "k/x.csv"))
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, 2, 1, 15, 4, 5, 0, time.FixedZone("MSK", 3*3600))
	assert.Equal(t, "invention/20240201T120405Z-export.csv", ObjectKey("invention", "/data/in/export.csv", at))
}

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("exists", func(t *testing.T) {
		api := new(MockMinIOAPI)
		api.On("BucketExists", ctx, "snap").Return(true, nil)
		require.NoError(t, newClientWithAPI(api, "snap", nil).EnsureBucket(ctx))
		api.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("created", func(t *testing.T) {
		api := new(MockMinIOAPI)
		api.On("BucketExists", ctx, "snap").Return(false, nil)
		api.On("MakeBucket", ctx, "snap", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)
		require.NoError(t, newClientWithAPI(api, "snap", nil).EnsureBucket(ctx))
		api.AssertExpectations(t)
	})

	t.Run("unreachable", func(t *testing.T) {
		api := new(MockMinIOAPI)
		api.On("BucketExists", ctx, "snap").Return(false, errors.New("dial tcp"))
		err := newClientWithAPI(api, "snap", nil).EnsureBucket(ctx)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable))
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("missing object", func(t *testing.T) {
		api := new(MockMinIOAPI)
		api.On("StatObject", ctx, "snap", "a.csv", mock.Anything).
			Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"})
		_, err := newClientWithAPI(api, "snap", nil).Open(ctx, "s3://snap/a.csv")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("download error", func(t *testing.T) {
		api := new(MockMinIOAPI)
		api.On("StatObject", ctx, "snap", "a.csv", mock.Anything).Return(minio.ObjectInfo{Size: 3}, nil)
		api.On("GetObject", ctx, "snap", "a.csv", mock.Anything).Return(nil, errors.New("reset"))
		_, err := newClientWithAPI(api, "snap", nil).Open(ctx, "s3://snap/a.csv")
		assert.True(t, apperrors.IsCode(err, apperrors.CodeStorageError))
	})

	t.Run("bad uri", func(t *testing.T) {
		_, err := newClientWithAPI(new(MockMinIOAPI), "snap", nil).Open(ctx, "a.csv")
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))
	})

	t.Run("closed", func(t *testing.T) {
		c := newClientWithAPI(new(MockMinIOAPI), "snap", nil)
		require.NoError(t, c.Close())
		_, err := c.Open(ctx, "s3://snap/a.csv")
		assert.ErrorIs(t, err, ErrClientClosed)
	})
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	body := strings.NewReader("a;b\n")

	api := new(MockMinIOAPI)
	api.On("PutObject", ctx, "snap", "invention/x.csv", body, int64(4), minio.PutObjectOptions{ContentType: "text/csv"}).
		Return(minio.UploadInfo{Bucket: "snap", Key: "invention/x.csv", Size: 4}, nil)

	uri, err := newClientWithAPI(api, "snap", nil).Upload(ctx, "invention/x.csv", body, 4, "")
	require.NoError(t, err)
	assert.Equal(t, "s3://snap/invention/x.csv", uri)

	api = new(MockMinIOAPI)
	api.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("denied"))
	_, err = newClientWithAPI(api, "snap", nil).Upload(ctx, "k", body, -1, "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStorageError))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	ch := make(chan minio.ObjectInfo, 3)
	ch <- minio.ObjectInfo{Key: "invention/1.csv", Size: 10}
	ch <- minio.ObjectInfo{Key: "invention/2.csv", Size: 20}
	ch <- minio.ObjectInfo{Key: "invention/3.csv", Size: 30}
	close(ch)

	api := new(MockMinIOAPI)
	api.On("ListObjects", mock.Anything, "snap", minio.ListObjectsOptions{Prefix: "invention/", Recursive: true}).
		Return((<-chan minio.ObjectInfo)(ch))

	objs, err := newClientWithAPI(api, "snap", nil).List(ctx, "invention/", 2)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "s3://snap/invention/2.csv", objs[1].URI)
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()
	api := new(MockMinIOAPI)
	api.On("BucketExists", ctx, "snap").Return(false, nil).Once()
	api.On("BucketExists", ctx, "snap").Return(true, nil)

	c := newClientWithAPI(api, "snap", nil)
	assert.Error(t, c.HealthCheck(ctx))
	assert.NoError(t, c.HealthCheck(ctx))
}
