package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/rid-registry/internal/application/ingest"
	"github.com/turtacn/rid-registry/internal/config"
	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/internal/infrastructure/storage"
	"github.com/turtacn/rid-registry/internal/infrastructure/tabular"
	"github.com/turtacn/rid-registry/internal/intelligence/entitykind"
	"github.com/turtacn/rid-registry/internal/testutil"
	"github.com/turtacn/rid-registry/pkg/errors"
)

const inventionExport = "Registration Number;Invention Name;Authors\n" +
	"2700001;Насос;Иванов Иван Иванович\n" +
	"2700002;Клапан;\n"

type recordingStore struct {
	key  string
	body string
}

func (s *recordingStore) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.key, s.body = key, string(b)
	return "s3://catalogue-snapshots/" + key, nil
}

// useMemRuntime points every command at an in-memory store.
func useMemRuntime(t *testing.T, store *testutil.MemStore, objects ObjectStore) {
	t.Helper()
	classifier, err := entitykind.NewClassifier(entitykind.Config{MinLength: 3, CacheSize: 100},
		entitykind.DefaultStrategies(3, nil), nil)
	require.NoError(t, err)
	svc, err := ingest.NewService(ingest.ServiceDeps{
		Repos: ingest.Repositories{
			Objects:       store.Objects(),
			Persons:       store.Persons(),
			Organizations: store.Organizations(),
			Countries:     store.Countries(),
			Relations:     store.Relations(),
			Snapshots:     store.Snapshots(),
			Categories:    store.Categories(),
		},
		Source:     storage.NewSource(nil, "", nil),
		Loader:     tabular.NewLoader(),
		Classifier: classifier,
	}, ingest.ServiceConfig{}, nil)
	require.NoError(t, err)

	prev := newRuntime
	newRuntime = func(context.Context, *config.Config, logging.Logger) (*Runtime, error) {
		return &Runtime{Service: svc, Snapshots: store.Snapshots(), Objects: objects, logger: logging.NewNopLogger()}, nil
	}
	t.Cleanup(func() { newRuntime = prev })
}

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invention.csv")
	require.NoError(t, os.WriteFile(path, []byte(inventionExport), 0o600))
	return path
}

func TestIngestCmd_File(t *testing.T) {
	store := testutil.NewMemStore()
	useMemRuntime(t, store, nil)

	out, err := execute(t, "-o", "json", "ingest", "--categories", "invention", "--file", writeExport(t))
	require.NoError(t, err)

	var report ingest.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Preview)
	assert.Equal(t, 2, report.Totals.RecordsSeen)
	assert.Equal(t, 2, report.Totals.Created)
	require.Len(t, report.Snapshots, 1)
	assert.True(t, report.Snapshots[0].Marked)

	assert.Equal(t, 2, store.ObjectCount())
	assert.Len(t, store.AllPersons(), 1)
	snaps, err := store.Snapshots().List(context.Background(), registry.SnapshotFilter{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Processed())
}

func TestIngestCmd_PreviewWritesNothing(t *testing.T) {
	store := testutil.NewMemStore()
	useMemRuntime(t, store, nil)

	out, err := execute(t, "-o", "table", "ingest", "--categories", "invention", "--file", writeExport(t), "--preview")
	require.NoError(t, err)
	assert.Contains(t, out, "SNAPSHOT")
	assert.Contains(t, out, "total")

	assert.Zero(t, store.ObjectCount())
	assert.Empty(t, store.AllPersons())
	snaps, err := store.Snapshots().List(context.Background(), registry.SnapshotFilter{})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestIngestCmd_NothingToDo(t *testing.T) {
	useMemRuntime(t, testutil.NewMemStore(), nil)

	out, err := execute(t, "ingest")
	require.NoError(t, err)
	assert.Contains(t, out, "total: seen 0, created 0")
}

func TestIngestOptions_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts ingestOptions
	}{
		{"unknown category", ingestOptions{categories: []string{"trademark"}}},
		{"file without category", ingestOptions{file: "x.csv"}},
		{"file with two categories", ingestOptions{file: "x.csv", categories: []string{"invention", "software"}}},
		{"file and snapshot id", ingestOptions{file: "x.csv", categories: []string{"invention"}, snapshotID: 3}},
		{"negative snapshot id", ingestOptions{snapshotID: -1}},
		{"negative stride", ingestOptions{stride: -2}},
		{"inverted years", ingestOptions{minYear: 2020, maxYear: 2010}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.runOptions()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeInvalidParam), err.Error())
		})
	}
}

func TestIngestOptions_Mapping(t *testing.T) {
	opts := ingestOptions{
		categories: []string{"Industrial-Design", "software"},
		force:      true, byYear: true, minYear: 2010, maxYear: 2020, stride: 2, onlyActive: true, limit: 100,
	}
	run, err := opts.runOptions()
	require.NoError(t, err)
	assert.Equal(t, []registry.Category{registry.CategoryIndustrialDesign, registry.CategorySoftware}, run.Categories)
	assert.True(t, run.Force)
	assert.Equal(t, ingest.PartitionOptions{ByYear: true, MinYear: 2010, MaxYear: 2020, Stride: 2, OnlyActive: true, Limit: 100}, run.Partition)
}

func TestSnapshotRegister_LocalPath(t *testing.T) {
	store := testutil.NewMemStore()
	useMemRuntime(t, store, nil)
	path := writeExport(t)

	out, err := execute(t, "-o", "json", "snapshot", "register", "invention", path, "--uploaded-at", "2024-02-01 10:00:00")
	require.NoError(t, err)

	var views []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "invention", views[0]["category"])
	assert.Equal(t, path, views[0]["source_uri"])

	snap, err := store.Snapshots().LatestUnprocessed(context.Background(), registry.CategoryInvention)
	require.NoError(t, err)
	assert.True(t, snap.UploadedAt.Equal(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)))
}

func TestSnapshotRegister_Upload(t *testing.T) {
	store := testutil.NewMemStore()
	objects := &recordingStore{}
	useMemRuntime(t, store, objects)

	_, err := execute(t, "snapshot", "register", "software", writeExport(t), "--upload")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(objects.key, "software/"), objects.key)
	assert.True(t, strings.HasSuffix(objects.key, "-invention.csv"), objects.key)
	assert.Equal(t, inventionExport, objects.body)

	snap, err := store.Snapshots().LatestUnprocessed(context.Background(), registry.CategorySoftware)
	require.NoError(t, err)
	assert.Equal(t, "s3://catalogue-snapshots/"+objects.key, snap.SourceURI)
}

func TestSnapshotRegister_Errors(t *testing.T) {
	useMemRuntime(t, testutil.NewMemStore(), nil)

	_, err := execute(t, "snapshot", "register", "invention", writeExport(t), "--upload")
	assert.True(t, errors.IsCode(err, errors.CodeStorageError))

	_, err = execute(t, "snapshot", "register", "trademark", "x.csv")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, err = execute(t, "snapshot", "register", "invention", "x.csv", "--uploaded-at", "not a date")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, err = execute(t, "snapshot", "register", "invention")
	assert.Error(t, err)
}

func TestSnapshotList(t *testing.T) {
	store := testutil.NewMemStore()
	useMemRuntime(t, store, nil)
	ctx := context.Background()
	for _, uri := range []string{"s3://b/a.csv", "s3://b/b.csv"} {
		require.NoError(t, store.Snapshots().Create(ctx, &registry.Snapshot{Category: registry.CategoryInvention, SourceURI: uri}))
	}
	require.NoError(t, store.Snapshots().Create(ctx, &registry.Snapshot{Category: registry.CategorySoftware, SourceURI: "s3://b/c.csv"}))
	require.NoError(t, store.Snapshots().MarkProcessed(ctx, 1, time.Now()))

	out, err := execute(t, "-o", "table", "snapshot", "list", "--category", "invention")
	require.NoError(t, err)
	assert.Contains(t, out, "s3://b/a.csv")
	assert.Contains(t, out, "s3://b/b.csv")
	assert.NotContains(t, out, "s3://b/c.csv")

	out, err = execute(t, "snapshot", "list", "--unprocessed")
	require.NoError(t, err)
	assert.NotContains(t, out, "s3://b/a.csv")
	assert.Contains(t, out, "s3://b/c.csv")

	_, err = execute(t, "snapshot", "list", "--limit", "-1")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestListen_NeedsKafka(t *testing.T) {
	useMemRuntime(t, testutil.NewMemStore(), nil)
	t.Setenv("RIDREG_KAFKA_ENABLED", "false")

	_, err := execute(t, "listen")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestServe_RejectsNegativeInterval(t *testing.T) {
	_, err := execute(t, "serve", "--interval", "-1s")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestMigrateCmds(t *testing.T) {
	var calls []string
	prev := schema
	schema = migrator{
		up:     func(string) error { calls = append(calls, "up"); return nil },
		down:   func(_ string, steps int) error { calls = append(calls, "down"); return nil },
		status: func(string) (uint, bool, error) { return 4, false, nil },
		force:  func(_ string, v int) error { calls = append(calls, "force"); return nil },
	}
	t.Cleanup(func() { schema = prev })

	out, err := execute(t, "-o", "json", "migrate", "status")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version": 4, "dirty": false}`, out)

	out, err = execute(t, "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, "schema version 4\n", out)

	_, err = execute(t, "migrate", "down", "--steps", "0")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	_, err = execute(t, "migrate", "down", "--steps", "2")
	require.NoError(t, err)

	_, err = execute(t, "migrate", "force", "abc")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	_, err = execute(t, "migrate", "force", "3")
	require.NoError(t, err)

	assert.Equal(t, []string{"up", "down", "force"}, calls)
}
