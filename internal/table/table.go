package table

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/devrev/tablecore/internal/clock"
	"github.com/devrev/tablecore/internal/config"
	tcerrors "github.com/devrev/tablecore/internal/errors"
	"github.com/devrev/tablecore/internal/metrics"
	"github.com/devrev/tablecore/internal/model"
	"github.com/devrev/tablecore/internal/storage"
	"github.com/devrev/tablecore/internal/store"
	"github.com/devrev/tablecore/internal/timeline"
	"github.com/devrev/tablecore/internal/view"
)

const (
	// PropertiesFileName is stored in the meta folder and marks an initialized table
	PropertiesFileName = "table.yaml"
	// TypeMergeOnRead is the only supported table type
	TypeMergeOnRead = "merge_on_read"
	// FormatVersion is written into new tables
	FormatVersion = 1
)

// Properties are fixed when a table is initialized
type Properties struct {
	Name                string `yaml:"name"`
	Type                string `yaml:"type"`
	Version             int    `yaml:"version"`
	CreatedAt           string `yaml:"created_at"`
	BucketsPerPartition int    `yaml:"buckets_per_partition"`
}

// Options carries the collaborators of a table handle
type Options struct {
	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Store replaces the instant store built from the configuration
	Store store.InstantStore
	// MetadataCacheBytes bounds the cache of completed instant metadata and compaction plans
	MetadataCacheBytes int64
}

// Table is the handle passed to every timeline, view and compaction operation
type Table struct {
	cfg       *config.Config
	props     Properties
	storage   storage.Storage
	store     store.InstantStore
	generator *timeline.InstantTimeGenerator
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics
	cache     *metadataCache
}

func (o *Options) setDefaults() {
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewNopMetrics()
	}
	if o.MetadataCacheBytes == 0 {
		o.MetadataCacheBytes = DefaultMetadataCacheBytes
	}
}

func propertiesPath() string {
	return path.Join(storage.MetaFolderName, PropertiesFileName)
}

// Init creates a new table at cfg.Table.BasePath. It fails with PreconditionFailed when
// the base path already holds a table.
func Init(ctx context.Context, cfg *config.Config, opts Options) (*Table, error) {
	opts.setDefaults()
	st, err := storage.NewLocalStorage(cfg.Table.BasePath, opts.Logger)
	if err != nil {
		return nil, err
	}

	props := Properties{
		Name:                cfg.Table.Name,
		Type:                TypeMergeOnRead,
		Version:             FormatVersion,
		CreatedAt:           timeline.FormatInstantTime(opts.Clock.Now()),
		BucketsPerPartition: cfg.Write.BucketsPerPartition,
	}
	data, err := yaml.Marshal(&props)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal table properties: %w", err)
	}
	if err := st.WriteFile(ctx, propertiesPath(), data); err != nil {
		if exists, _ := st.Exists(ctx, propertiesPath()); exists {
			return nil, tcerrors.PreconditionFailed(fmt.Sprintf("table already initialized at %s", st.BasePath()))
		}
		return nil, tcerrors.DurableWriteFailed("failed to write table properties", err)
	}

	opts.Logger.Info("Table initialized",
		zap.String("table", props.Name),
		zap.String("base_path", st.BasePath()),
		zap.Int("buckets_per_partition", props.BucketsPerPartition))

	return newTable(ctx, cfg, props, st, opts)
}

// Open loads an existing table. It fails with TableNotFound when no table was initialized
// at cfg.Table.BasePath.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Table, error) {
	opts.setDefaults()
	propsFile := filepath.Join(cfg.Table.BasePath, filepath.FromSlash(propertiesPath()))
	data, err := os.ReadFile(propsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, tcerrors.TableNotFound(cfg.Table.BasePath, err)
		}
		return nil, tcerrors.Unavailable("failed to read table properties", err)
	}
	var props Properties
	if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, tcerrors.CorruptedMetadata("failed to parse table properties", err)
	}
	if props.Type != TypeMergeOnRead {
		return nil, tcerrors.CorruptedMetadata(fmt.Sprintf("unsupported table type %q", props.Type), nil)
	}

	st, err := storage.NewLocalStorage(cfg.Table.BasePath, opts.Logger)
	if err != nil {
		return nil, err
	}
	return newTable(ctx, cfg, props, st, opts)
}

func newTable(ctx context.Context, cfg *config.Config, props Properties, st storage.Storage, opts Options) (*Table, error) {
	is := opts.Store
	if is == nil {
		metaDir := filepath.Join(st.BasePath(), storage.MetaFolderName)
		var err error
		if is, err = store.Open(ctx, cfg, metaDir, opts.Logger); err != nil {
			return nil, err
		}
	}
	gen, err := timeline.NewInstantTimeGenerator(opts.Clock, "")
	if err != nil {
		return nil, err
	}

	logger := opts.Logger.With(zap.String("table", props.Name))
	t := &Table{
		cfg:       cfg,
		props:     props,
		storage:   st,
		store:     is,
		generator: gen,
		clock:     opts.Clock,
		logger:    logger,
		metrics:   opts.Metrics,
		cache:     newMetadataCache(opts.MetadataCacheBytes, opts.Clock, logger),
	}
	// seeds the generator past every existing instant
	if _, err := t.LoadTimeline(ctx); err != nil {
		is.Close()
		return nil, err
	}
	return t, nil
}

func (t *Table) Config() *config.Config { return t.cfg }
func (t *Table) Properties() Properties { return t.props }
func (t *Table) Name() string { return t.props.Name }
func (t *Table) BasePath() string { return t.storage.BasePath() }
func (t *Table) Storage() storage.Storage { return t.storage }
func (t *Table) Store() store.InstantStore { return t.store }
func (t *Table) Clock() clock.Clock { return t.clock }
func (t *Table) Logger() *zap.Logger { return t.logger }
func (t *Table) Metrics() *metrics.Metrics { return t.metrics }
func (t *Table) Markers(ts string) *storage.Markers { return storage.NewMarkers(t.storage, ts) }

// BucketsPerPartition returns the bucket count fixed at initialization
func (t *Table) BucketsPerPartition() int {
	if t.props.BucketsPerPartition > 0 {
		return t.props.BucketsPerPartition
	}
	return t.cfg.Write.BucketsPerPartition
}

// NewInstantTime returns a timestamp later than every instant seen by this handle
func (t *Table) NewInstantTime() string {
	return t.generator.Next()
}

// Close releases the instant store
func (t *Table) Close() error {
	return t.store.Close()
}

// LoadTimeline returns a fresh snapshot of every instant in its most advanced state
func (t *Table) LoadTimeline(ctx context.Context) (*timeline.Timeline, error) {
	start := time.Now()
	artifacts, err := t.store.ListInstants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list instants: %w", err)
	}
	tl, err := timeline.FromArtifacts(artifacts)
	if err != nil {
		return nil, err
	}
	if last, ok := tl.LastInstant(); ok {
		if err := t.generator.Observe(last.Timestamp); err != nil {
			t.logger.Debug("Ignoring unparsable instant time", zap.String("instant", last.String()), zap.Error(err))
		}
	}
	t.metrics.RecordTimelineLoad(time.Since(start).Seconds(), tl.FilterPendingCompactions().Count())
	return tl, nil
}

// currentInstant returns the most advanced durable state of the instant at ts
func (t *Table) currentInstant(ctx context.Context, ts string) (model.Instant, error) {
	tl, err := t.LoadTimeline(ctx)
	if err != nil {
		return model.Instant{}, err
	}
	in, ok := tl.GetInstant(ts)
	if !ok {
		return model.Instant{}, tcerrors.InstantNotFound(ts)
	}
	return in, nil
}

// CreateRequested persists a new requested instant
func (t *Table) CreateRequested(ctx context.Context, action model.Action, ts string, content []byte) (model.Instant, error) {
	if !action.Valid() {
		return model.Instant{}, tcerrors.InvalidArgument(fmt.Sprintf("unknown action %q", action), nil)
	}
	if !model.IsValidInstantTime(ts) {
		return model.Instant{}, tcerrors.InvalidArgument(fmt.Sprintf("invalid instant time %q", ts), nil)
	}
	in := model.NewInstant(model.StateRequested, action, ts)
	if err := t.store.PutInstant(ctx, in, content); err != nil {
		return model.Instant{}, err
	}
	if err := t.generator.Observe(ts); err != nil {
		t.logger.Debug("Ignoring unparsable instant time", zap.String("instant", in.String()), zap.Error(err))
	}
	t.metrics.RecordTransition(string(action), string(model.StateRequested))
	t.logger.Debug("Instant created", zap.String("instant", in.String()))
	return in, nil
}

// Transition advances from to the given state with a single atomic write. The durable
// state must still be from; otherwise the transition is rejected without mutation.
func (t *Table) Transition(ctx context.Context, from model.Instant, to model.State, content []byte) (model.Instant, error) {
	next, err := from.Transition(to)
	if err != nil {
		return model.Instant{}, err
	}
	current, err := t.currentInstant(ctx, from.Timestamp)
	if err != nil {
		return model.Instant{}, err
	}
	if current != from {
		return model.Instant{}, tcerrors.InvalidTransition(from.String(), current.String(), next.String()).
			WithDetail("reason", "durable state has moved")
	}
	if err := t.store.PutInstant(ctx, next, content); err != nil {
		return model.Instant{}, err
	}
	t.metrics.RecordTransition(string(next.Action), string(next.State))
	t.logger.Debug("Instant transitioned",
		zap.String("from", from.String()),
		zap.String("to", next.String()))
	return next, nil
}

// RemoveRequested deletes a compaction that has not started executing. Once a log file
// targets the slice the compaction opened, removing it would hide that log from readers,
// so the removal is refused.
func (t *Table) RemoveRequested(ctx context.Context, ts string) error {
	current, err := t.currentInstant(ctx, ts)
	if err != nil {
		return err
	}
	if current.Action != model.ActionCompaction || !current.IsRequested() {
		return tcerrors.PreconditionFailed(fmt.Sprintf("instant %s cannot be removed, only requested compactions can", current))
	}
	if logPath, err := t.findLogTargeting(ctx, ts); err != nil {
		return err
	} else if logPath != "" {
		return tcerrors.PreconditionFailed(fmt.Sprintf("compaction %s cannot be removed, log file %s was written into its slice", ts, logPath))
	}
	if err := t.store.DeleteInstant(ctx, current); err != nil {
		return err
	}
	t.cache.remove(current.FileName())
	t.logger.Info("Requested compaction removed", zap.String("instant_time", ts))
	return nil
}

// findLogTargeting returns the path of a log file whose base instant is ts, or ""
func (t *Table) findLogTargeting(ctx context.Context, ts string) (string, error) {
	files, err := t.storage.List(ctx, storage.AllPartitions)
	if err != nil {
		return "", fmt.Errorf("failed to list data files: %w", err)
	}
	for _, f := range files {
		name, err := model.ParseDataFileName(f.Name)
		if err != nil {
			continue
		}
		if name.Kind == model.FileKindLog && name.InstantTime == ts {
			return f.Path, nil
		}
	}
	return "", nil
}

// ReadCompactionPlan returns the plan stored with a requested compaction
func (t *Table) ReadCompactionPlan(ctx context.Context, ts string) (*model.CompactionPlan, error) {
	data, err := t.readInstant(ctx, model.NewInstant(model.StateRequested, model.ActionCompaction, ts))
	if err != nil {
		return nil, err
	}
	return timeline.DecodeCompactionPlan(data)
}

// ReadCommitMetadata returns the metadata stored with a completed instant
func (t *Table) ReadCommitMetadata(ctx context.Context, in model.Instant) (*model.CommitMetadata, error) {
	if !in.IsCompleted() {
		return nil, tcerrors.InvalidArgument(fmt.Sprintf("instant %s is not completed", in), nil)
	}
	data, err := t.readInstant(ctx, in)
	if err != nil {
		return nil, err
	}
	return timeline.DecodeCommitMetadata(data)
}

// readInstant reads an artifact that never changes once written, through the metadata cache
func (t *Table) readInstant(ctx context.Context, in model.Instant) ([]byte, error) {
	key := in.FileName()
	if data, ok := t.cache.get(key); ok {
		return data, nil
	}
	data, err := t.store.ReadInstant(ctx, in)
	if err != nil {
		return nil, err
	}
	t.cache.put(key, data)
	return data, nil
}

// MetadataCacheStats returns statistics of the instant metadata cache
func (t *Table) MetadataCacheStats() CacheStats { return t.cache.stats() }

// PendingCompactionPlans returns the plans of every pending compaction in tl
func (t *Table) PendingCompactionPlans(ctx context.Context, tl *timeline.Timeline) ([]*model.CompactionPlan, error) {
	var plans []*model.CompactionPlan
	for in := range tl.FilterPendingCompactions().Instants() {
		plan, err := t.ReadCompactionPlan(ctx, in.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to read plan of %s: %w", in, err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// BuildView lists data files under partitionGlob and reconstructs the view visible through tl
func (t *Table) BuildView(ctx context.Context, tl *timeline.Timeline, partitionGlob string) (*view.View, error) {
	start := time.Now()
	files, err := t.storage.List(ctx, partitionGlob)
	if err != nil {
		return nil, fmt.Errorf("failed to list data files: %w", err)
	}
	plans, err := t.PendingCompactionPlans(ctx, tl)
	if err != nil {
		return nil, err
	}
	pending := make(map[model.FileGroupID]string)
	for _, plan := range plans {
		for _, op := range plan.Operations {
			pending[op.GroupID()] = plan.InstantTime
		}
	}

	v := view.Build(view.Input{Timeline: tl, Files: files, PendingCompactions: pending})
	if anomalies := v.Anomalies(); anomalies != nil {
		t.logger.Warn("Unparsable data files excluded from view",
			zap.Int("count", v.AnomalyCount()),
			zap.Error(anomalies))
	}
	t.metrics.RecordViewBuild(time.Since(start).Seconds(), v.AnomalyCount())
	return v, nil
}
