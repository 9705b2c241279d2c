package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/schemaql/adapters/metrics"
	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
	"github.com/artpar/schemaql/ports"
)

// QueryConfig configures the query service.
type QueryConfig struct {
	Schemas ports.SchemaLoader
	Cache   ports.ResultCache
	Plugins *PluginRegistry
	Views   *ViewComposer
	Logger  zerolog.Logger
	Metrics *metrics.Collector

	// MaxParallel bounds concurrent sub-queries per batch. Zero or less
	// means unbounded.
	MaxParallel int
}

// QueryService processes query batches.
type QueryService struct {
	schemas     ports.SchemaLoader
	cache       ports.ResultCache
	plugins     *PluginRegistry
	views       *ViewComposer
	logger      zerolog.Logger
	metrics     *metrics.Collector
	maxParallel int
}

// NewQueryService creates a query service.
func NewQueryService(cfg QueryConfig) *QueryService {
	return &QueryService{
		schemas:     cfg.Schemas,
		cache:       cfg.Cache,
		plugins:     cfg.Plugins,
		views:       cfg.Views,
		logger:      cfg.Logger.With().Str("service", "query").Logger(),
		metrics:     cfg.Metrics,
		maxParallel: cfg.MaxParallel,
	}
}

// ProcessBatch runs every sub-query concurrently and returns results in
// request order. Sub-queries are not cancelled when a sibling fails; the
// first failure in request order is returned and no partial results are.
func (s *QueryService) ProcessBatch(ctx context.Context, batch query.Batch) (*query.BatchResponse, error) {
	batchID := uuid.NewString()
	logger := s.logger.With().Str("batch_id", batchID).Logger()
	logger.Info().Int("queries", len(batch.Queries)).Msg("processing batch")

	results := make([]query.Result, len(batch.Queries))
	errs := make([]error, len(batch.Queries))

	var g errgroup.Group
	if s.maxParallel > 0 {
		g.SetLimit(s.maxParallel)
	}
	for i, sq := range batch.Queries {
		g.Go(func() error {
			results[i], errs[i] = s.ProcessOne(ctx, sq, batch.IncludeDataTypes)
			return nil
		})
	}
	g.Wait()

	for i, err := range errs {
		if err != nil {
			logger.Warn().
				Err(err).
				Int("index", i).
				Str("schema", batch.Queries[i].Schema).
				Msg("sub-query failed")
			return nil, err
		}
	}

	return &query.BatchResponse{
		Results:          results,
		IncludeDataTypes: batch.IncludeDataTypes,
	}, nil
}

// ProcessOne answers a single sub-query, reading through the result cache
// when the namespace is cacheable.
func (s *QueryService) ProcessOne(ctx context.Context, sq query.SubQuery, includeTypes bool) (res query.Result, err error) {
	start := time.Now()
	outcome := "miss"
	defer func() {
		if err != nil {
			outcome = string(query.CodeOf(err))
		}
		s.observe(sq, outcome, start)
	}()

	sc, err := loadSchema(ctx, s.schemas, sq.Schema)
	if err != nil {
		return query.Result{}, err
	}

	nsName := sq.Namespace
	if sc.IsView() {
		nsName = sc.Name
	}
	ns, ok := sc.Namespace(nsName)
	if !ok {
		return query.Result{}, query.Errorf(query.CodeNamespaceNotFound, "namespace not found: %s", nsName)
	}

	if missing := query.MissingMandatory(sc.Source, sq.Arguments); len(missing) > 0 {
		return query.Result{}, query.Errorf(query.CodeInvalidRequest, "missing mandatory arguments: %s", strings.Join(missing, ", "))
	}

	var key string
	if ns.Cacheable {
		key = query.CacheKey(ns.CacheKeyPattern, sq.Arguments)
		if rows, ok := s.cache.Get(key); ok {
			outcome = "hit"
			s.countCache("get", "hit")
			s.logger.Debug().Str("key", key).Int("rows", len(rows)).Msg("cache hit")
			return query.NewResult(nsName, sc, ns, rows, includeTypes), nil
		}
		s.countCache("get", "miss")
		s.logger.Debug().Str("key", key).Msg("cache miss")
	}

	rows, err := s.execute(ctx, sc, ns, sq)
	if err != nil {
		return query.Result{}, err
	}

	if ns.Cacheable {
		ttl := time.Duration(ns.CacheTTL) * time.Second
		s.cache.Put(key, rows, ttl)
		s.countCache("put", "ok")
		s.logger.Debug().
			Str("key", key).
			Int("rows", len(rows)).
			Dur("ttl", ttl).
			Msg("cached rows")
	}

	return query.NewResult(nsName, sc, ns, rows, includeTypes), nil
}

// execute dispatches to the view composer or the source's plugin.
func (s *QueryService) execute(ctx context.Context, sc *schema.Schema, ns *schema.Namespace, sq query.SubQuery) ([]value.Row, error) {
	if sc.IsView() {
		if s.views == nil {
			return nil, query.Errorf(query.CodeNoPlugin, "no plugin for source kind view")
		}
		return s.views.Compose(ctx, sc, sq.Arguments)
	}

	plugin, err := s.plugins.Resolve(sc.Source.Type)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("schema", sc.Name).
		Str("namespace", ns.Name).
		Str("plugin", plugin.Kind()).
		Msg("dispatching sub-query")

	return plugin.Execute(ctx, ns, sq.Fields, sq.Arguments, sc)
}

func (s *QueryService) observe(sq query.SubQuery, outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueriesTotal.WithLabelValues(sq.Schema, sq.Namespace, outcome).Inc()
	s.metrics.QueryDuration.WithLabelValues(sq.Schema).Observe(time.Since(start).Seconds())
}

func (s *QueryService) countCache(op, result string) {
	if s.metrics != nil {
		s.metrics.CacheOps.WithLabelValues(op, result).Inc()
	}
}

// loadSchema returns the cached schema or loads it.
func loadSchema(ctx context.Context, loader ports.SchemaLoader, name string) (*schema.Schema, error) {
	if sc, ok := loader.GetCached(name); ok {
		return sc, nil
	}
	return loader.Load(ctx, name)
}
