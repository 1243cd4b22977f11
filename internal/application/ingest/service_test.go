package ingest

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/rid-registry/internal/application/resolver"
	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/testutil"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

// tableSource serves the URI itself as content; tableLoader maps that
// content to a prepared table.
type tableSource struct{ missing map[string]bool }

func (s tableSource) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	if s.missing[uri] {
		return nil, apperrors.NotFound("snapshot object").WithDetail(uri)
	}
	return io.NopCloser(strings.NewReader(uri)), nil
}

type tableLoader map[string]*registry.Table

func (l tableLoader) Load(r io.Reader) (*registry.Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	t, ok := l[string(b)]
	if !ok {
		return nil, apperrors.New(apperrors.CodeSnapshotUnreadable, "no table")
	}
	return t, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func (l *fakeLocker) TryLock(_ context.Context, name string) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, false, nil
	}
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released = append(l.released, name)
		return nil
	}, true, nil
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishSnapshotProcessed(ctx context.Context, event SnapshotProcessedEvent) error {
	return m.Called(ctx, event).Error(0)
}

type recordingMetrics struct {
	snapshots []SnapshotReport
	entities  []resolver.Stats
}

func (m *recordingMetrics) ObserveSnapshot(report *SnapshotReport, _ time.Duration) {
	m.snapshots = append(m.snapshots, *report)
}

func (m *recordingMetrics) ObserveEntities(stats resolver.Stats) {
	m.entities = append(m.entities, stats)
}

type serviceFixture struct {
	store     *testutil.MemStore
	tables    tableLoader
	source    tableSource
	locker    *fakeLocker
	publisher *mockPublisher
	metrics   *recordingMetrics
	svc       *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	f := &serviceFixture{
		store:     testutil.NewMemStore(),
		tables:    tableLoader{},
		source:    tableSource{missing: map[string]bool{}},
		locker:    &fakeLocker{held: map[string]bool{}},
		publisher: &mockPublisher{},
		metrics:   &recordingMetrics{},
	}
	svc, err := NewService(ServiceDeps{
		Repos: Repositories{
			Objects:       f.store.Objects(),
			Persons:       f.store.Persons(),
			Organizations: f.store.Organizations(),
			Countries:     f.store.Countries(),
			Relations:     f.store.Relations(),
			Snapshots:     f.store.Snapshots(),
			Categories:    f.store.Categories(),
		},
		Source:     f.source,
		Loader:     f.tables,
		Classifier: newClassifier(t),
		Locker:     f.locker,
		Publisher:  f.publisher,
		Metrics:    f.metrics,
	}, ServiceConfig{}, nil)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *serviceFixture) register(t *testing.T, category registry.Category, uri string, tbl *registry.Table) *registry.Snapshot {
	f.tables[uri] = tbl
	snap, err := f.svc.RegisterSnapshot(context.Background(), category, uri, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return snap
}

func inventionTable() *registry.Table {
	return table([]string{registry.ColRegistrationNumber, "invention name", registry.ColAuthors},
		[]string{"1001", "Device A", "Ivanov Ivan Ivanovich"},
		[]string{"1002", "Device B", "Petrov Petr"},
	)
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestService_RunLatestUnprocessed(t *testing.T) {
	f := newServiceFixture(t)
	snap := f.register(t, registry.CategoryInvention, "s3://snapshots/inv.csv", inventionTable())
	f.publisher.On("PublishSnapshotProcessed", mock.Anything, mock.MatchedBy(func(e SnapshotProcessedEvent) bool {
		return e.SnapshotID == snap.ID && e.Stats.Created == 2 && e.Marked
	})).Return(nil).Once()

	report, err := f.svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	require.Len(t, report.Snapshots, 1)
	sr := report.Snapshots[0]
	assert.True(t, sr.Marked)
	assert.Equal(t, ModeWhole, sr.Mode)
	assert.Equal(t, Stats{RecordsSeen: 2, Created: 2}, report.Totals)
	assert.Equal(t, 2, report.Entities.PersonsCreated)
	assert.NotEmpty(t, report.RunID)
	assert.Same(t, report, f.svc.LastReport())

	stored, err := f.store.Snapshots().Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed())
	assert.Equal(t, []string{"ingest:invention"}, f.locker.released)
	assert.Len(t, f.metrics.snapshots, 1)
	assert.Len(t, f.metrics.entities, 1)
	f.publisher.AssertExpectations(t)

	// nothing left to do on the next run
	report, err = f.svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.Snapshots)
}

func TestService_MissingColumnsSkipsOnlyThatPair(t *testing.T) {
	f := newServiceFixture(t)
	bad := f.register(t, registry.CategorySoftware, "bad.csv",
		table([]string{registry.ColRegistrationNumber, "title"}, []string{"1", "X"}))
	f.register(t, registry.CategoryInvention, "good.csv", inventionTable())
	f.publisher.On("PublishSnapshotProcessed", mock.Anything, mock.Anything).Return(nil)

	report, err := f.svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, report.Snapshots, 2)

	var skipped, processed *SnapshotReport
	for i := range report.Snapshots {
		if report.Snapshots[i].SnapshotID == bad.ID {
			skipped = &report.Snapshots[i]
		} else {
			processed = &report.Snapshots[i]
		}
	}
	require.NotNil(t, skipped)
	require.NotNil(t, processed)
	assert.True(t, skipped.Skipped)
	assert.False(t, skipped.Marked)
	assert.Contains(t, skipped.Error, "program name")
	assert.Zero(t, skipped.Stats.RecordsSeen)
	assert.True(t, processed.Marked)
	assert.Equal(t, 2, report.Totals.Created)
}

func TestService_MissingCategoryReference(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, registry.CategoryDatabase, "db.csv",
		table([]string{registry.ColRegistrationNumber, "db name"}, []string{"1", "X"}))
	f.store.RemoveCategory(registry.CategoryDatabase)

	report, err := f.svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Empty(t, report.Snapshots)
	assert.Contains(t, report.CategoryErrors, "database")
	assert.Equal(t, 1, report.Totals.Errors)
	assert.Zero(t, f.store.ObjectCount())
}

func TestService_LockedCategoryIsSkipped(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, registry.CategoryInvention, "inv.csv", inventionTable())
	f.locker.held["ingest:invention"] = true

	report, err := f.svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Empty(t, report.Snapshots)
	assert.Contains(t, report.CategoryErrors, "invention")
	assert.Zero(t, f.store.ObjectCount())
}

func TestService_RowErrorsBlockMarking(t *testing.T) {
	f := newServiceFixture(t)
	tbl := table([]string{registry.ColRegistrationNumber, "program name", registry.ColUpdateYear},
		[]string{"1", "Ok", "2020"}, []string{"2", "Broken", "later"})
	snap := f.register(t, registry.CategorySoftware, "soft.csv", tbl)

	report, err := f.svc.Run(context.Background(), RunOptions{SnapshotID: snap.ID})
	require.NoError(t, err)
	require.Len(t, report.Snapshots, 1)
	assert.False(t, report.Snapshots[0].Marked)
	assert.Equal(t, 1, report.Totals.Errors)
	assert.Len(t, report.Snapshots[0].RowErrors, 1)
	f.publisher.AssertNotCalled(t, "PublishSnapshotProcessed", mock.Anything, mock.Anything)

	f.publisher.On("PublishSnapshotProcessed", mock.Anything, mock.Anything).Return(nil).Once()
	report, err = f.svc.Run(context.Background(), RunOptions{SnapshotID: snap.ID, ForceMark: true, Force: true})
	require.NoError(t, err)
	assert.True(t, report.Snapshots[0].Marked)
}

func TestService_UnreadableSnapshot(t *testing.T) {
	f := newServiceFixture(t)
	snap := f.register(t, registry.CategoryInvention, "gone.csv", inventionTable())
	f.source.missing["gone.csv"] = true

	report, err := f.svc.Run(context.Background(), RunOptions{SnapshotID: snap.ID})
	require.NoError(t, err)
	require.Len(t, report.Snapshots, 1)
	assert.True(t, report.Snapshots[0].Skipped)
	assert.False(t, report.Snapshots[0].Marked)
}

func TestService_PreviewFile(t *testing.T) {
	f := newServiceFixture(t)
	f.tables["local.csv"] = inventionTable()

	report, err := f.svc.Run(context.Background(), RunOptions{
		File: "local.csv", Categories: []registry.Category{registry.CategoryInvention}, Preview: true,
	})
	require.NoError(t, err)

	require.Len(t, report.Snapshots, 1)
	assert.True(t, report.Preview)
	assert.Equal(t, 2, report.Totals.Created)
	assert.False(t, report.Snapshots[0].Marked)
	assert.Zero(t, f.store.ObjectCount())
	assert.Empty(t, f.store.AllPersons())
	snaps, err := f.store.Snapshots().List(context.Background(), registry.SnapshotFilter{})
	require.NoError(t, err)
	assert.Empty(t, snaps)
	f.publisher.AssertNotCalled(t, "PublishSnapshotProcessed", mock.Anything, mock.Anything)
}

func TestService_FileNeedsOneCategory(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Run(context.Background(), RunOptions{File: "x.csv"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))
}

func TestService_StorageFailureReturnsPartialReport(t *testing.T) {
	f := newServiceFixture(t)
	snap := f.register(t, registry.CategoryInvention, "inv.csv", inventionTable())
	f.store.FailAll = true

	report, err := f.svc.Run(context.Background(), RunOptions{SnapshotID: snap.ID})
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Same(t, report, f.svc.LastReport())
}

func TestService_PublishFailureIsNotFatal(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, registry.CategoryInvention, "inv.csv", inventionTable())
	f.publisher.On("PublishSnapshotProcessed", mock.Anything, mock.Anything).
		Return(apperrors.New(apperrors.CodeMessagingError, "broker down"))

	report, err := f.svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.True(t, report.Snapshots[0].Marked)
}

func TestService_RegisterSnapshotValidates(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.RegisterSnapshot(context.Background(), "patents", "x.csv", time.Time{})
	assert.Error(t, err)
	_, err = f.svc.RegisterSnapshot(context.Background(), registry.CategoryInvention, " ", time.Time{})
	assert.Error(t, err)
}

func TestService_IngestUpload(t *testing.T) {
	f := newServiceFixture(t)
	f.tables["s3://snapshots/new.csv"] = inventionTable()
	f.publisher.On("PublishSnapshotProcessed", mock.Anything, mock.Anything).Return(nil).Once()

	report, err := f.svc.IngestUpload(context.Background(), registry.CategoryInvention, "s3://snapshots/new.csv",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), RunOptions{Categories: []registry.Category{registry.CategorySoftware}})
	require.NoError(t, err)
	require.Len(t, report.Snapshots, 1)
	assert.Equal(t, "invention", report.Snapshots[0].Category)
	assert.True(t, report.Snapshots[0].Marked)
	assert.Equal(t, 2, report.Totals.Created)

	_, err = f.svc.IngestUpload(context.Background(), registry.CategoryInvention, "x.csv", time.Time{}, RunOptions{Preview: true})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))

	_, err = f.svc.IngestUpload(context.Background(), registry.CategoryInvention, " ", time.Time{}, RunOptions{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))
}
