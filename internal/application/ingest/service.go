package ingest

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/rid-registry/internal/application/resolver"
	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/internal/intelligence/entitykind"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Repositories groups the storage the service reads and writes.
type Repositories struct {
	Objects       registry.ObjectRepository
	Persons       registry.PersonRepository
	Organizations registry.OrganizationRepository
	Countries     registry.CountryRepository
	Relations     registry.RelationRepository
	Snapshots     registry.SnapshotRepository
	Categories    registry.CategoryRepository
}

// SnapshotSource opens the raw bytes behind a snapshot's source URI.
type SnapshotSource interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// TableLoader decodes a raw snapshot into a header-normalized table.
type TableLoader interface {
	Load(r io.Reader) (*registry.Table, error)
}

// RunLocker serializes runs of the same category across processes.
type RunLocker interface {
	// TryLock returns acquired=false when another process holds name.
	TryLock(ctx context.Context, name string) (release func(context.Context) error, acquired bool, err error)
}

// EventPublisher announces processed snapshots.
type EventPublisher interface {
	PublishSnapshotProcessed(ctx context.Context, event SnapshotProcessedEvent) error
}

// Metrics records run outcomes.
type Metrics interface {
	ObserveSnapshot(report *SnapshotReport, elapsed time.Duration)
	ObserveEntities(stats resolver.Stats)
}

// SnapshotProcessedEvent is published after a snapshot pass completes.
type SnapshotProcessedEvent struct {
	RunID       string        `json:"run_id"`
	SnapshotID  int64         `json:"snapshot_id"`
	Category    string        `json:"category"`
	SourceURI   string        `json:"source_uri"`
	Stats       Stats         `json:"stats"`
	Relations   RelationStats `json:"relations"`
	Marked      bool          `json:"marked"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// ---------------------------------------------------------------------------
// Options and report
// ---------------------------------------------------------------------------

// RunOptions selects what a run processes and how.
type RunOptions struct {
	// Categories limits the run; empty means every category.
	Categories []registry.Category `json:"categories,omitempty"`
	// SnapshotID processes exactly that snapshot.
	SnapshotID int64 `json:"snapshot_id,omitempty"`
	// File registers and processes a local file; needs exactly one category.
	File string `json:"file,omitempty"`
	// Force disables the staleness rule.
	Force bool `json:"force,omitempty"`
	// ForceMark marks snapshots processed even when rows failed.
	ForceMark bool             `json:"force_mark,omitempty"`
	Preview   bool             `json:"preview,omitempty"`
	Partition PartitionOptions `json:"partition"`
}

// RunReport is the structured summary of one run.  It is returned even when
// the run fails part-way.
type RunReport struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Preview    bool             `json:"preview"`
	Snapshots  []SnapshotReport `json:"snapshots"`
	Totals     Stats            `json:"totals"`
	Entities   resolver.Stats   `json:"entities"`
	// CategoryErrors lists categories that could not be processed at all.
	CategoryErrors map[string]string `json:"category_errors,omitempty"`
}

func (r *RunReport) categoryError(c registry.Category, err error) {
	if r.CategoryErrors == nil {
		r.CategoryErrors = make(map[string]string)
	}
	r.CategoryErrors[string(c)] = err.Error()
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// ServiceConfig carries the batch sizes of every stage.
type ServiceConfig struct {
	Engine      EngineConfig
	Relations   RelationConfig
	ChunkSize   int
	SlugRetries int
}

// ServiceDeps are the collaborators of Service.  Locker, Publisher, Metrics
// and Parser are optional.
type ServiceDeps struct {
	Repos      Repositories
	Source     SnapshotSource
	Loader     TableLoader
	Classifier Classifier
	Parser     entitykind.NameParser
	Locker     RunLocker
	Publisher  EventPublisher
	Metrics    Metrics
}

// Service runs catalogue reconciliations.
type Service struct {
	deps   ServiceDeps
	cfg    ServiceConfig
	logger logging.Logger
	now    func() time.Time

	mu   sync.RWMutex
	last *RunReport
}

// NewService builds a Service.
func NewService(deps ServiceDeps, cfg ServiceConfig, logger logging.Logger) (*Service, error) {
	if deps.Repos.Objects == nil || deps.Repos.Snapshots == nil || deps.Repos.Categories == nil {
		return nil, apperrors.InvalidParam("ingest service needs object, snapshot and category repositories")
	}
	if deps.Source == nil || deps.Loader == nil || deps.Classifier == nil {
		return nil, apperrors.InvalidParam("ingest service needs a snapshot source, a table loader and a classifier")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{deps: deps, cfg: cfg, logger: logger.Named("ingest"), now: time.Now}, nil
}

// LastReport returns the report of the most recent run, or nil.
func (s *Service) LastReport() *RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// RegisterSnapshot records an uploaded snapshot so a later run can pick it up.
func (s *Service) RegisterSnapshot(ctx context.Context, category registry.Category, sourceURI string, uploadedAt time.Time) (*registry.Snapshot, error) {
	if _, err := registry.ParseCategory(string(category)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sourceURI) == "" {
		return nil, apperrors.InvalidParam("snapshot source is required")
	}
	if uploadedAt.IsZero() {
		uploadedAt = s.now()
	}
	snap := &registry.Snapshot{Category: category, SourceURI: sourceURI, UploadedAt: uploadedAt.UTC()}
	if err := s.deps.Repos.Snapshots.Create(ctx, snap); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnknown, "registering snapshot")
	}
	s.logger.Info("snapshot registered",
		logging.Int64("snapshot_id", snap.ID), logging.String("category", string(category)),
		logging.String("source", sourceURI))
	return snap, nil
}

// IngestUpload registers a freshly uploaded snapshot and runs it.  The
// selection fields of opts are replaced; preview is refused since
// registering is itself a write.
func (s *Service) IngestUpload(ctx context.Context, category registry.Category, sourceURI string, uploadedAt time.Time, opts RunOptions) (*RunReport, error) {
	if opts.Preview {
		return nil, apperrors.InvalidParam("uploads cannot be ingested in preview mode")
	}
	snap, err := s.RegisterSnapshot(ctx, category, sourceURI, uploadedAt)
	if err != nil {
		return nil, err
	}
	opts.Categories = []registry.Category{category}
	opts.SnapshotID = snap.ID
	opts.File = ""
	return s.Run(ctx, opts)
}

// Run reconciles the selected snapshots category by category.  A storage
// failure aborts the run and is returned together with the partial report.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	report := &RunReport{RunID: uuid.NewString(), StartedAt: s.now(), Preview: opts.Preview}
	log := s.logger.With(logging.String("run_id", report.RunID))

	res := resolver.New(s.deps.Repos.Persons, s.deps.Repos.Organizations, s.deps.Repos.Countries,
		s.deps.Parser, resolver.NewCache(),
		resolver.Options{ChunkSize: s.cfg.ChunkSize, SlugRetries: s.cfg.SlugRetries, Preview: opts.Preview}, log)

	err := s.run(ctx, log, res, opts, report)

	report.Entities = res.Stats()
	report.FinishedAt = s.now()
	for _, snap := range report.Snapshots {
		report.Totals.Add(snap.Stats)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveEntities(report.Entities)
	}
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	fields := []logging.Field{
		logging.Int("snapshots", len(report.Snapshots)),
		logging.Int("records_seen", report.Totals.RecordsSeen),
		logging.Int("created", report.Totals.Created),
		logging.Int("updated", report.Totals.Updated),
		logging.Int("unchanged", report.Totals.Unchanged),
		logging.Int("skipped", report.Totals.Skipped),
		logging.Int("skipped_by_staleness", report.Totals.SkippedByStaleness),
		logging.Int("errors", report.Totals.Errors),
		logging.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	}
	if err != nil {
		log.Error("run aborted", append(fields, logging.Err(err))...)
		return report, err
	}
	log.Info("run finished", fields...)
	return report, nil
}

func (s *Service) run(ctx context.Context, log logging.Logger, res *resolver.Resolver, opts RunOptions, report *RunReport) error {
	plan, err := s.plan(ctx, log, opts)
	if err != nil {
		return err
	}

	for _, category := range plan.order {
		if _, err := s.deps.Repos.Categories.Get(ctx, category); err != nil {
			if !apperrors.IsNotFound(err) {
				return err
			}
			log.Error("category reference missing", logging.String("category", string(category)), logging.Err(err))
			report.categoryError(category, err)
			report.Totals.Errors++
			continue
		}

		release, ok, err := s.lock(ctx, log, category)
		if !ok {
			if err != nil {
				report.categoryError(category, err)
			} else {
				report.categoryError(category, apperrors.New(apperrors.CodeLockHeld, "category is locked by another run"))
			}
			continue
		}

		err = s.runCategory(ctx, log, res, category, plan.snapshots[category], opts, report)
		if release != nil {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				log.Warn("releasing run lock failed", logging.String("category", string(category)), logging.Err(rerr))
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) runCategory(ctx context.Context, log logging.Logger, res *resolver.Resolver, category registry.Category, snaps []*registry.Snapshot, opts RunOptions, report *RunReport) error {
	adapter, ok := registry.AdapterFor(category)
	if !ok {
		return apperrors.New(apperrors.CodeCategoryNotFound, "no adapter for category").WithDetail(string(category))
	}
	for _, snap := range snaps {
		started := s.now()
		sr, err := s.processSnapshot(ctx, log, res, adapter, snap, opts, report.RunID)
		if sr != nil {
			report.Snapshots = append(report.Snapshots, *sr)
			if s.deps.Metrics != nil {
				s.deps.Metrics.ObserveSnapshot(sr, s.now().Sub(started))
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) processSnapshot(ctx context.Context, log logging.Logger, res *resolver.Resolver, adapter *registry.Adapter, snap *registry.Snapshot, opts RunOptions, runID string) (*SnapshotReport, error) {
	log = log.With(logging.Int64("snapshot_id", snap.ID), logging.String("category", string(snap.Category)))
	sr := &SnapshotReport{SnapshotID: snap.ID, Category: string(snap.Category), SourceURI: snap.SourceURI}

	table, err := s.loadTable(ctx, snap.SourceURI)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeSnapshotUnreadable) {
			log.Error("snapshot unreadable, skipping", logging.Err(err))
			sr.Skipped, sr.Error = true, err.Error()
			return sr, nil
		}
		return sr, err
	}
	if missing := table.MissingColumns(adapter.RequiredColumns()); len(missing) > 0 {
		err := apperrors.New(apperrors.CodeMissingColumns, "snapshot is missing required columns").
			WithDetail(strings.Join(missing, ", "))
		log.Error("skipping snapshot", logging.Strings("missing", missing), logging.Err(err))
		sr.Skipped, sr.Error = true, err.Error()
		return sr, nil
	}

	reconciler := NewReconciler(s.deps.Repos.Relations, res, s.deps.Classifier, s.cfg.Relations, opts.Preview, log)
	engine := NewEngine(s.deps.Repos.Objects, reconciler, s.cfg.Engine, log)
	pass := Pass{
		Adapter:    adapter,
		Table:      table,
		UploadedAt: snap.UploadedAt,
		Force:      opts.Force,
		Preview:    opts.Preview,
	}

	log.Info("processing snapshot", logging.Int("rows", len(table.Rows)), logging.Bool("preview", opts.Preview))
	result, mode, years, err := NewPartitioner(engine, log).Run(ctx, pass, opts.Partition)
	sr.Mode, sr.Years = mode, years
	if result != nil {
		sr.Stats, sr.Relations, sr.RowErrors = result.Stats, result.Relations, result.RowErrors
	}
	if err != nil {
		sr.Error = err.Error()
		return sr, err
	}

	if opts.Preview {
		return sr, nil
	}
	if sr.Stats.Errors > 0 && !opts.ForceMark {
		log.Warn("snapshot left unmarked because rows failed", logging.Int("errors", sr.Stats.Errors))
		return sr, nil
	}
	processedAt := s.now().UTC()
	if err := s.deps.Repos.Snapshots.MarkProcessed(ctx, snap.ID, processedAt); err != nil {
		return sr, apperrors.Wrap(err, apperrors.CodeUnknown, "marking snapshot processed")
	}
	sr.Marked = true

	if s.deps.Publisher != nil {
		event := SnapshotProcessedEvent{
			RunID: runID, SnapshotID: snap.ID, Category: string(snap.Category), SourceURI: snap.SourceURI,
			Stats: sr.Stats, Relations: sr.Relations, Marked: sr.Marked, ProcessedAt: processedAt,
		}
		if err := s.deps.Publisher.PublishSnapshotProcessed(ctx, event); err != nil {
			log.Warn("publishing snapshot event failed", logging.Err(err))
		}
	}
	return sr, nil
}

func (s *Service) loadTable(ctx context.Context, uri string) (*registry.Table, error) {
	rc, err := s.deps.Source.Open(ctx, uri)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Wrap(err, apperrors.CodeSnapshotUnreadable, "opening snapshot")
		}
		return nil, apperrors.Wrap(err, apperrors.CodeUnknown, "opening snapshot")
	}
	defer rc.Close()
	table, err := s.deps.Loader.Load(rc)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeSnapshotUnreadable, "decoding snapshot")
	}
	return table, nil
}

func (s *Service) lock(ctx context.Context, log logging.Logger, category registry.Category) (func(context.Context) error, bool, error) {
	if s.deps.Locker == nil {
		return nil, true, nil
	}
	release, ok, err := s.deps.Locker.TryLock(ctx, "ingest:"+string(category))
	if err != nil {
		log.Warn("run lock unavailable, skipping category", logging.String("category", string(category)), logging.Err(err))
		return nil, false, err
	}
	if !ok {
		log.Warn("category locked by another run, skipping", logging.String("category", string(category)))
		return nil, false, nil
	}
	return release, true, nil
}

// ---------------------------------------------------------------------------
// Planning
// ---------------------------------------------------------------------------

type runPlan struct {
	order     []registry.Category
	snapshots map[registry.Category][]*registry.Snapshot
}

func (p *runPlan) add(snap *registry.Snapshot) {
	if _, ok := p.snapshots[snap.Category]; !ok {
		p.order = append(p.order, snap.Category)
	}
	p.snapshots[snap.Category] = append(p.snapshots[snap.Category], snap)
}

func (s *Service) plan(ctx context.Context, log logging.Logger, opts RunOptions) (*runPlan, error) {
	plan := &runPlan{snapshots: make(map[registry.Category][]*registry.Snapshot)}

	switch {
	case opts.File != "":
		if len(opts.Categories) != 1 {
			return nil, apperrors.InvalidParam("a snapshot file needs exactly one category")
		}
		snap := &registry.Snapshot{Category: opts.Categories[0], SourceURI: opts.File, UploadedAt: s.now().UTC()}
		if !opts.Preview {
			registered, err := s.RegisterSnapshot(ctx, snap.Category, snap.SourceURI, snap.UploadedAt)
			if err != nil {
				return nil, err
			}
			snap = registered
		}
		plan.add(snap)

	case opts.SnapshotID != 0:
		snap, err := s.deps.Repos.Snapshots.Get(ctx, opts.SnapshotID)
		if err != nil {
			return nil, err
		}
		plan.add(snap)

	default:
		categories := opts.Categories
		if len(categories) == 0 {
			categories = registry.Categories
		}
		for _, c := range categories {
			snap, err := s.deps.Repos.Snapshots.LatestUnprocessed(ctx, c)
			if err != nil {
				if apperrors.IsNotFound(err) {
					log.Info("no unprocessed snapshot", logging.String("category", string(c)))
					continue
				}
				return nil, err
			}
			plan.add(snap)
		}
	}
	return plan, nil
}
