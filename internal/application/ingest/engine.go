// Package ingest reconciles catalogue snapshots with the registry: the row
// diff and upsert engine, the relation reconciler, the year-partition
// controller and the run service that drives them.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/internal/intelligence/entitykind"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

// EngineConfig bounds the engine's storage round trips.
type EngineConfig struct {
	LookupBatchSize int
	CreateBatchSize int
	UpdateBatchSize int
	MaxLoggedErrors int
}

func (c *EngineConfig) applyDefaults() {
	if c.LookupBatchSize < 1 {
		c.LookupBatchSize = 1000
	}
	if c.CreateBatchSize < 1 {
		c.CreateBatchSize = 1000
	}
	if c.UpdateBatchSize < 1 {
		c.UpdateBatchSize = 500
	}
	if c.MaxLoggedErrors < 0 {
		c.MaxLoggedErrors = 0
	}
}

// Pass is one slice of a snapshot to reconcile.
type Pass struct {
	Adapter *registry.Adapter
	Table   *registry.Table
	// UploadedAt is the snapshot upload time; zero disables the staleness rule.
	UploadedAt time.Time
	Force      bool
	Preview    bool
}

// PassResult is the outcome of Engine.Process.
type PassResult struct {
	Stats     Stats
	Relations RelationStats
	RowErrors []RowError
}

func (r *PassResult) add(other *PassResult) {
	r.Stats.Add(other.Stats)
	r.Relations.Add(other.Relations)
	r.RowErrors = append(r.RowErrors, other.RowErrors...)
}

// Engine decides create, update or skip for every row of a pass and writes
// the result in batches.  One Engine serves one snapshot.
type Engine struct {
	objects    registry.ObjectRepository
	reconciler *Reconciler
	cfg        EngineConfig
	logger     logging.Logger
	logged     int
}

// NewEngine builds an Engine.
func NewEngine(objects registry.ObjectRepository, reconciler *Reconciler, cfg EngineConfig, logger logging.Logger) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{
		objects:    objects,
		reconciler: reconciler,
		cfg:        cfg,
		logger:     logger.Named("engine"),
	}
}

// Process reconciles the rows of pass.  Row-level data errors are counted
// and reported; storage errors abort the pass.
func (e *Engine) Process(ctx context.Context, pass Pass) (*PassResult, error) {
	if pass.Adapter == nil || pass.Table == nil {
		return nil, apperrors.InvalidParam("pass needs an adapter and a table")
	}
	a := pass.Adapter
	res := &PassResult{}
	res.Stats.RecordsSeen = len(pass.Table.Rows)

	// key extraction
	keyed := make([]registry.Row, 0, len(pass.Table.Rows))
	keys := make([]string, 0, len(pass.Table.Rows))
	seen := make(map[string]struct{}, len(pass.Table.Rows))
	for _, row := range pass.Table.Rows {
		key := a.Key(row)
		if key == "" {
			res.Stats.Skipped++
			continue
		}
		if _, dup := seen[key]; dup {
			res.Stats.Skipped++
			e.logger.Debug("duplicate registration number in snapshot", logging.String("registration_number", key))
			continue
		}
		seen[key] = struct{}{}
		keyed = append(keyed, row)
		keys = append(keys, key)
	}

	existing, err := e.lookup(ctx, a.Category, keys)
	if err != nil {
		return res, err
	}

	var (
		creates    []*registry.RegisteredObject
		updates    []registry.ObjectUpdate
		candidates []Candidate
		touched    = make(map[string]int64, len(keyed))
	)
	for i, row := range keyed {
		key := keys[i]
		current := existing[key]

		if !pass.Force && !pass.UploadedAt.IsZero() && current != nil && !current.UpdatedAt.Before(pass.UploadedAt) {
			res.Stats.SkippedByStaleness++
			res.Stats.Skipped++
			continue
		}

		target, err := a.Build(row)
		if err != nil {
			e.rowError(res, key, err)
			continue
		}

		if current == nil {
			creates = append(creates, target)
		} else {
			touched[key] = current.ID
			changes := registry.Diff(current, target, a.Tracked)
			if len(changes) == 0 {
				res.Stats.Unchanged++
			} else {
				updates = append(updates, registry.ObjectUpdate{ID: current.ID, Changes: changes})
			}
		}
		candidates = append(candidates, harvest(a, key, row)...)
	}

	if err := e.create(ctx, pass.Preview, creates, res); err != nil {
		return res, err
	}
	for _, obj := range creates {
		touched[obj.RegistrationNumber] = obj.ID
	}
	if err := e.update(ctx, pass.Preview, updates, res); err != nil {
		return res, err
	}

	rel, err := e.reconciler.Reconcile(ctx, relationKinds(a, pass.Table), candidates, touched)
	res.Relations = rel
	if err != nil {
		return res, err
	}
	return res, nil
}

func (e *Engine) lookup(ctx context.Context, category registry.Category, keys []string) (map[string]*registry.RegisteredObject, error) {
	out := make(map[string]*registry.RegisteredObject, len(keys))
	for start := 0; start < len(keys); start += e.cfg.LookupBatchSize {
		end := min(start+e.cfg.LookupBatchSize, len(keys))
		found, err := e.objects.FindByRegistrationNumbers(ctx, category, keys[start:end])
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeUnknown, "looking up registered objects")
		}
		for k, v := range found {
			out[k] = v
		}
	}
	return out, nil
}

func (e *Engine) create(ctx context.Context, preview bool, creates []*registry.RegisteredObject, res *PassResult) error {
	if preview {
		res.Stats.Created += len(creates)
		return nil
	}
	for start := 0; start < len(creates); start += e.cfg.CreateBatchSize {
		end := min(start+e.cfg.CreateBatchSize, len(creates))
		if err := e.objects.CreateBatch(ctx, creates[start:end]); err != nil {
			return apperrors.Wrap(err, apperrors.CodeUnknown, "creating registered objects")
		}
		res.Stats.Created += end - start
	}
	return nil
}

func (e *Engine) update(ctx context.Context, preview bool, updates []registry.ObjectUpdate, res *PassResult) error {
	if preview {
		res.Stats.Updated += len(updates)
		return nil
	}
	for start := 0; start < len(updates); start += e.cfg.UpdateBatchSize {
		end := min(start+e.cfg.UpdateBatchSize, len(updates))
		n, err := e.objects.UpdateBatch(ctx, updates[start:end])
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeUnknown, "updating registered objects")
		}
		res.Stats.Updated += n
	}
	return nil
}

func (e *Engine) rowError(res *PassResult, key string, err error) {
	res.Stats.Errors++
	res.RowErrors = append(res.RowErrors, RowError{RegistrationNumber: key, Message: err.Error()})
	if e.logged >= e.cfg.MaxLoggedErrors {
		return
	}
	e.logged++
	fields := []logging.Field{logging.String("registration_number", key), logging.Err(err)}
	var fe *registry.FieldError
	if errors.As(err, &fe) {
		fields = append(fields, logging.String("field", string(fe.Field)), logging.String("value", fe.Value))
	}
	e.logger.Warn("row rejected", fields...)
}

// harvest collects the relation candidates of one row.  Authors are known
// persons; holders are classified later.
func harvest(a *registry.Adapter, key string, row registry.Row) []Candidate {
	var out []Candidate
	for _, name := range a.Authors(row) {
		out = append(out, Candidate{RegistrationNumber: key, Name: name, Role: RoleAuthor, Kind: entitykind.KindPerson})
	}
	for _, name := range a.Holders(row) {
		out = append(out, Candidate{RegistrationNumber: key, Name: name, Role: RoleHolder})
	}
	for _, name := range a.Countries(row) {
		out = append(out, Candidate{RegistrationNumber: key, Name: name, Role: RoleCountry})
	}
	return out
}

// relationKinds lists the edge kinds whose source column is present in
// table.  A snapshot without an authors column leaves authorship alone.
func relationKinds(a *registry.Adapter, table *registry.Table) []registry.RelationKind {
	var kinds []registry.RelationKind
	if a.AuthorsColumn != "" && table.HasColumn(a.AuthorsColumn) {
		kinds = append(kinds, registry.RelationAuthor)
	}
	if a.HoldersColumn != "" && table.HasColumn(a.HoldersColumn) {
		kinds = append(kinds, registry.RelationPersonHolder, registry.RelationOrgHolder)
	}
	if a.CountriesColumn != "" && table.HasColumn(a.CountriesColumn) {
		kinds = append(kinds, registry.RelationUsageCountry)
	}
	return kinds
}
