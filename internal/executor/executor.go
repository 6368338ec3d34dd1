// Package executor wires together the spec planner, origin fetcher,
// transform registry, and response serializer into the single
// GetEndpointData entry point. Grounded on the Python predecessor's
// executor.py (the Executor class shape, async_get_endpoint_data and
// svc_response) and gin/executor/connector_request.py (the
// fetch/aggregate/transform pipeline it drives).
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/KathyBarabash/asg-runtime/internal/cachefacade"
	"github.com/KathyBarabash/asg-runtime/internal/origin"
	"github.com/KathyBarabash/asg-runtime/internal/serializer"
	"github.com/KathyBarabash/asg-runtime/internal/spec"
	"github.com/KathyBarabash/asg-runtime/internal/stats"
	"github.com/KathyBarabash/asg-runtime/internal/transform"
	"github.com/KathyBarabash/asg-runtime/pkg/aerrors"
)

// Messages mirrors the predecessor's Settings.msgs: the fixed,
// human-readable strings the management endpoints return when a cache
// tier is disabled.
const (
	msgNoResponseCache      = "response cache is disabled"
	msgNoOriginCache        = "origin cache is disabled"
	msgResponseCacheCleared = "response cache cleared"
	msgOriginCacheCleared   = "origin cache cleared"
)

// Response is the envelope every GetEndpointData call returns:
// {"status":"ok","data":<bytes>} or
// {"status":"error","message":<string>,"data":null}.
type Response struct {
	Status  string `json:"status"`
	Data    []byte `json:"data"`
	Message string `json:"message,omitempty"`
}

// Options configures a new Executor. ResponseCache and OriginFetcher's
// own cache may be nil to disable that tier entirely.
type Options struct {
	Logger             *slog.Logger
	ResponseCache      *cachefacade.Facade
	OriginCache        *cachefacade.Facade
	OriginFetcher      *origin.Fetcher
	ResponseSerializer serializer.Serializer
	Transforms         transform.Registry
	AppStats           *stats.AppStats
}

// Executor is the runtime's single stateful coordinator: one instance is
// built at startup and serves every GetEndpointData call concurrently.
// It holds the origin cache alongside the origin fetcher (which was
// already constructed with the same facade wired in) purely for the
// management endpoints below; fetch-time revalidation only ever goes
// through the fetcher.
type Executor struct {
	logger        *slog.Logger
	responseCache *cachefacade.Facade
	originCache   *cachefacade.Facade
	originFetcher *origin.Fetcher
	responseSer   serializer.Serializer
	transforms    transform.Registry
	appStats      *stats.AppStats
}

// New builds an Executor from already-constructed components; component
// construction (which backend, which serializer) is a config-layer
// concern, not this package's.
func New(opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	transforms := opts.Transforms
	if transforms == nil {
		transforms = transform.Builtins
	}
	appStats := opts.AppStats
	if appStats == nil {
		appStats = &stats.AppStats{}
	}
	return &Executor{
		logger:        logger,
		responseCache: opts.ResponseCache,
		originCache:   opts.OriginCache,
		originFetcher: opts.OriginFetcher,
		responseSer:   opts.ResponseSerializer,
		transforms:    transforms,
		appStats:      appStats,
	}
}

// GetEndpointData parses specString, resolves its dependency plan,
// fetches and transforms the origin data, and encodes the result. It
// never panics or returns a Go error to its caller: every failure is
// reported in the envelope's message field instead.
func (e *Executor) GetEndpointData(ctx context.Context, specString string) Response {
	start := time.Now()
	e.appStats.IncReceived()
	reqID := uuid.New().String()
	log := e.logger.With("request_id", reqID)

	s, err := spec.Parse(specString)
	if err != nil {
		return e.fail(log, start, "invalid endpoint spec: "+err.Error())
	}

	cacheKey := s.Fingerprint()
	if e.responseCache != nil {
		if cached, ok := e.responseCache.GetData(ctx, cacheKey); ok {
			if encoded, ok := cached.([]byte); ok {
				stats.NoteCacheOp("response", "hit")
				return e.succeed(log, start, encoded)
			}
			log.Warn("cached response was not the expected encoded artifact, fetching fresh")
		} else {
			stats.NoteCacheOp("response", "miss")
		}
	}

	planner, err := spec.BuildPlanner(s)
	if err != nil {
		return e.fail(log, start, "invalid endpoint spec: "+err.Error())
	}

	originData, err := e.fetchOriginData(ctx, planner)
	if err != nil {
		return e.fail(log, start, "error fetching data from origin servers: "+err.Error())
	}

	datasets := buildDatasetMap(s, originData)
	transformed, err := e.applyExports(s, datasets)
	if err != nil {
		return e.fail(log, start, "internal error transforming the data: "+err.Error())
	}

	encoded, err := e.responseSer.Encode(transformed)
	if err != nil {
		return e.fail(log, start, "internal error encoding the response: "+err.Error())
	}

	if e.responseCache != nil {
		if err := e.responseCache.Set(ctx, cacheKey, encoded, 0); err != nil {
			log.Warn("internal error caching the response", "error", err)
		} else {
			stats.NoteCacheOp("response", "set")
		}
	}

	return e.succeed(log, start, encoded)
}

func (e *Executor) succeed(log *slog.Logger, start time.Time, encoded []byte) Response {
	e.appStats.RecordServed(len(encoded), time.Since(start))
	log.Info("request served", "duration", time.Since(start), "bytes", len(encoded))
	return Response{Status: "ok", Data: encoded}
}

func (e *Executor) fail(log *slog.Logger, start time.Time, message string) Response {
	e.appStats.RecordFailed(time.Since(start))
	log.Error("request failed", "message", message)
	return Response{Status: "error", Message: message}
}

// fetchOriginData walks the planner's topological order, fetching each
// API's plan entries concurrently via errgroup since entries that share
// no dependency may be fetched in parallel, while feeding every API's
// aggregated result forward as the prereqOutputs for its dependents.
func (e *Executor) fetchOriginData(ctx context.Context, planner *spec.Planner) (map[string]any, error) {
	raw := make(map[string]any)
	for _, api := range planner.Order() {
		entries, err := planner.Entries(api, raw)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			raw[api] = nil
			continue
		}

		results := make([]any, len(entries))
		group, gctx := errgroup.WithContext(ctx)
		for i, entry := range entries {
			i, entry := i, entry
			group.Go(func() error {
				result, err := e.fetchEntry(gctx, entry)
				if err != nil {
					return err
				}
				results[i] = result
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, aerrors.FetchFailedError("fetching "+api, true, err)
		}

		raw[api] = aggregateAPIResults(entries, results)
	}
	return raw, nil
}

// fetchEntry converts one plan entry into an origin.DataSource call and
// collapses its (possibly multi-page) result into a single JSON value.
func (e *Executor) fetchEntry(ctx context.Context, entry spec.PlanEntry) (any, error) {
	pages, err := e.originFetcher.FetchJSONPages(ctx, origin.DataSource{
		URLTemplate:   entry.URLTemplate,
		ParameterArgs: entry.ParameterArgs,
		HeaderArgs:    entry.HeaderArgs,
		Timeout:       entry.Timeout,
		Pagination:    entry.Pagination,
	})
	if err != nil {
		return nil, err
	}
	if list, ok := pages.([]any); ok {
		return mergePages(list), nil
	}
	return pages, nil
}

// Stats returns the describe()-style snapshot for the management
// endpoint, mirroring get_stats.
func (e *Executor) Stats() stats.Snapshot {
	snap := stats.Snapshot{
		App: e.appStats.Snapshot(),
	}
	if e.originFetcher != nil {
		snap.Rest = stats.RecordOriginStats(e.originFetcher.Stats())
	}
	if e.responseCache != nil {
		cs := stats.RecordCacheStats("response", e.responseCache.Stats())
		snap.ResponseCache = &cs
	}
	if e.originCache != nil {
		cs := stats.RecordCacheStats("origin", e.originCache.Stats())
		snap.OriginCache = &cs
	}
	return snap
}

// ClearResponseCache mirrors async_clear_response_cache: a no-op message
// when the tier is disabled, never an error.
func (e *Executor) ClearResponseCache(ctx context.Context) string {
	if e.responseCache == nil {
		return msgNoResponseCache
	}
	if err := e.responseCache.Clear(ctx); err != nil {
		e.logger.Warn("clearing response cache failed", "error", err)
	}
	return msgResponseCacheCleared
}

// ClearOriginCache mirrors async_clear_origin_cache.
func (e *Executor) ClearOriginCache(ctx context.Context) string {
	if e.originCache == nil {
		return msgNoOriginCache
	}
	if err := e.originCache.Clear(ctx); err != nil {
		e.logger.Warn("clearing origin cache failed", "error", err)
	}
	return msgOriginCacheCleared
}
