// Package origin implements the cache-aware origin fetcher: it turns a
// resolved DataSource into JSON pages, consulting and updating the
// origin cache (keyed on the concrete request, not the endpoint spec)
// along the way. Grounded on the Python predecessor's
// http/origin_fetcher.py.
package origin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/KathyBarabash/asg-runtime/internal/cachefacade"
	"github.com/KathyBarabash/asg-runtime/internal/httpfetch"
)

// FetchError reports an origin call that never produced usable data,
// after the HTTP fetcher exhausted its retries. It carries the URL and a
// human-readable reason, mirroring the predecessor's FetchFailure.
type FetchError struct {
	URL    string
	Reason string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch data from %s: %s", e.URL, e.Reason)
}

// DataSource is a single fully-resolved origin call: a URL template with
// its path/query parameters already substituted into a concrete request
// shape, plus pagination instructions.
type DataSource struct {
	URLTemplate   string
	ParameterArgs map[string]string
	HeaderArgs    map[string]string
	Timeout       time.Duration
	Pagination    *httpfetch.Pagination
}

// hashContents derives the origin cache key for this source: a
// SHA-256 of the URL template plus its sorted query parameters, matching
// RestDataSource.hash_contents in the predecessor. Path parameters are
// folded into the URL before hashing by composeGetParams, so only the
// remaining query parameters contribute here.
func (d DataSource) hashContents(resolvedURL string, query url.Values) string {
	raw := resolvedURL + "?" + query.Encode()
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Settings bounds how the fetcher talks to upstream origins.
type Settings struct {
	Timeout      time.Duration
	MaxRetries   int
	MaxPages     int
	RetryBackoff time.Duration
}

// DefaultSettings mirrors the predecessor's HttpSettings defaults.
func DefaultSettings() Settings {
	return Settings{
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		MaxPages:     10,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// Stats accumulates per-call accounting across every fetch this Fetcher
// performs, mirroring RestClientStats/FromAPI.describe().
type Stats struct {
	RequestsIssued int64
	BytesReceived  int64
	FetchingTime   time.Duration
}

// Fetcher is the cache-aware origin fetcher. cache may be nil, in which
// case every call goes straight to the origin with no revalidation.
type Fetcher struct {
	http     *httpfetch.Fetcher
	cache    *cachefacade.Facade
	settings Settings
	logger   *slog.Logger

	requestsIssued int64
	bytesReceived  int64
	fetchingTime   time.Duration
}

// New builds an origin Fetcher. cache may be nil to disable the origin
// cache entirely.
func New(httpFetcher *httpfetch.Fetcher, cache *cachefacade.Facade, settings Settings, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{http: httpFetcher, cache: cache, settings: settings, logger: logger}
}

// Stats returns a snapshot of accumulated fetch accounting.
func (f *Fetcher) Stats() Stats {
	return Stats{
		RequestsIssued: f.requestsIssued,
		BytesReceived:  f.bytesReceived,
		FetchingTime:   f.fetchingTime,
	}
}

// FetchJSONPages resolves source against the origin cache, issues
// whatever HTTP calls are still needed, and returns the aggregated JSON
// pages (or cached data, on a 304 revalidation). It never returns a bare
// transport error: fetch failures are wrapped in *FetchError.
func (f *Fetcher) FetchJSONPages(ctx context.Context, source DataSource) (any, error) {
	resolvedURL, query, err := composeGetParams(source.URLTemplate, source.ParameterArgs)
	if err != nil {
		return nil, &FetchError{URL: source.URLTemplate, Reason: err.Error()}
	}
	cacheKey := source.hashContents(resolvedURL, query)

	var cachedData any
	var cachedValidators *cachefacade.Validators
	var haveCached bool
	if f.cache != nil {
		cachedData, cachedValidators, haveCached = f.cache.GetDataWithValidators(ctx, cacheKey)
		if haveCached && cachedData != nil && cachedValidators == nil {
			f.logger.Debug("data in cache but no validators, returning from cache", "key", cacheKey)
			return cachedData, nil
		}
	}

	headers := http.Header{}
	for k, v := range source.HeaderArgs {
		headers.Set(k, v)
	}
	if cachedValidators != nil {
		addCachingHeaders(headers, cachedValidators)
	}

	timeout := source.Timeout
	if timeout <= 0 {
		timeout = f.settings.Timeout
	}

	req := httpfetch.Request{
		Method:  http.MethodGet,
		URL:     resolvedURL,
		Query:   query,
		Headers: headers,
		Timeout: timeout,
	}
	retry := httpfetch.RetryConfig{MaxRetries: f.settings.MaxRetries, RetryBackoff: f.settings.RetryBackoff}

	result, err := f.http.FetchJSONPages(ctx, req, source.Pagination, f.settings.MaxPages, retry)
	if err != nil {
		return nil, &FetchError{URL: resolvedURL, Reason: err.Error()}
	}

	f.requestsIssued += int64(result.RequestsIssued)
	f.bytesReceived += int64(result.BytesReceived)
	f.fetchingTime += result.FetchingTime

	if result.MaybeMorePages {
		f.logger.Warn("origin response suggests more pages were left unfetched", "url", resolvedURL)
	}

	if len(result.Pages) == 0 {
		return nil, &FetchError{URL: resolvedURL, Reason: "no pages returned"}
	}

	first := result.Pages[0]
	if first.StatusCode == http.StatusNotModified {
		f.logger.Debug("304 not modified, reusing cached data", "key", cacheKey)
		if f.cache != nil {
			if changed := newCachingHeaders(cachedValidators, first.Headers); changed != nil {
				if err := f.cache.SetValidators(ctx, cacheKey, *changed); err != nil {
					f.logger.Warn("origin cache set validators failed", "key", cacheKey, "error", err)
				}
			}
		}
		return cachedData, nil
	}

	var newData []any
	for _, page := range result.Pages {
		newData = append(newData, page.JSON)
	}

	if f.cache == nil {
		return newData, nil
	}

	newValidators := newCachingHeaders(cachedValidators, first.Headers)
	if len(newData) > 0 {
		if err := f.cache.Set(ctx, cacheKey, anySliceToAny(newData), 0); err != nil {
			f.logger.Warn("origin cache set failed, continuing without caching", "key", cacheKey, "error", err)
		} else if newValidators != nil {
			if err := f.cache.SetValidators(ctx, cacheKey, *newValidators); err != nil {
				f.logger.Warn("origin cache set validators failed", "key", cacheKey, "error", err)
			}
		}
		return newData, nil
	}

	if haveCached {
		if newValidators != nil {
			if err := f.cache.SetValidators(ctx, cacheKey, *newValidators); err != nil {
				f.logger.Warn("origin cache set validators failed", "key", cacheKey, "error", err)
			}
		}
		return cachedData, nil
	}

	return nil, nil
}

// anySliceToAny exists only so the facade's Set(any) signature accepts a
// []any without the caller repeating the conversion at each call site.
func anySliceToAny(v []any) any { return v }

func addCachingHeaders(headers http.Header, v *cachefacade.Validators) {
	if v == nil {
		return
	}
	if v.ETag != "" {
		headers.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		headers.Set("If-Modified-Since", v.LastModified)
	}
}

// newCachingHeaders derives the validators worth caching from a fresh
// response, returning nil when nothing changed from what's already
// cached (mirrors get_caching_headers's change-detection).
func newCachingHeaders(cached *cachefacade.Validators, respHeaders http.Header) *cachefacade.Validators {
	if respHeaders == nil {
		return nil
	}
	etag := respHeaders.Get("Etag")
	lastMod := respHeaders.Get("Last-Modified")
	if etag == "" && lastMod == "" {
		return nil
	}
	var cachedETag, cachedLastMod string
	if cached != nil {
		cachedETag = cached.ETag
		cachedLastMod = cached.LastModified
	}
	if etag == cachedETag && lastMod == cachedLastMod {
		return nil
	}
	return &cachefacade.Validators{ETag: etag, LastModified: lastMod}
}

// composeGetParams substitutes path parameters into urlTemplate (Go
// template verbs of the form "{name}") and returns the remaining
// arguments as query parameters, mirroring compose_http_get_params.
func composeGetParams(urlTemplate string, parameterArgs map[string]string) (string, url.Values, error) {
	pathKeys := pathParamNames(urlTemplate)
	resolved := urlTemplate
	for _, key := range pathKeys {
		val, ok := parameterArgs[key]
		if !ok {
			return "", nil, fmt.Errorf("missing path parameter %q in url template %q", key, urlTemplate)
		}
		resolved = replacePathParam(resolved, key, val)
	}

	query := url.Values{}
	keys := make([]string, 0, len(parameterArgs))
	for k := range parameterArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if containsString(pathKeys, k) {
			continue
		}
		query.Set(k, parameterArgs[k])
	}
	return resolved, query, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
