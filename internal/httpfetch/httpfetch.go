// Package httpfetch implements the single-request retry/backoff loop and
// multi-page pagination fetch, grounded on the Python predecessor's
// http/httpx_helper.py. It knows nothing about caching or argument
// resolution: callers hand it a fully-resolved URL, query, headers and
// pagination descriptor, and get back JSON pages.
package httpfetch

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/KathyBarabash/asg-runtime/internal/httputil"
)

// goodStatuses are terminal successes: 200 returns a fresh body, 304
// means the caller's cached body is still valid.
var goodStatuses = map[int]bool{http.StatusOK: true, http.StatusNotModified: true}

// retryStatuses are possibly-transient failures worth another attempt.
var retryStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// PaginationType names the pagination strategy an endpoint spec declares.
type PaginationType string

const (
	PaginationPage   PaginationType = "page"
	PaginationCursor PaginationType = "cursor"
	PaginationOffset PaginationType = "offset"
	PaginationKeyset PaginationType = "keyset"
	PaginationTime   PaginationType = "time"
)

// ParamTranslation locates the values needed to estimate the total page
// count from the first page's response body.
type ParamTranslation struct {
	PageRef       string `yaml:"page_ref" json:"page_ref"`
	PageSizePath  string `yaml:"page_size_path" json:"page_size_path"`
	TotalSizePath string `yaml:"total_size_path" json:"total_size_path"`
}

// Pagination describes how to fetch subsequent pages of a paginated
// endpoint. Exactly one of NextPath or PaginationParams normally drives
// traversal; ParamTranslation is an optional estimation overlay.
type Pagination struct {
	Type              PaginationType    `yaml:"type" json:"type"`
	NextPath          string            `yaml:"next_path" json:"next_path"`
	PaginationParams  map[string]string `yaml:"pagination_params" json:"pagination_params"`
	ParamTranslation  *ParamTranslation `yaml:"param_translation" json:"param_translation"`
}

// Request is a single fully-resolved HTTP call, with no outstanding
// argument references.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Headers http.Header
	Body    []byte
	Timeout time.Duration
}

// RetryConfig bounds a single request's retry/backoff behavior.
type RetryConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultRetryConfig mirrors the predecessor's defaults (3 attempts, 0.5s
// base backoff).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, RetryBackoff: 500 * time.Millisecond}
}

// Page is one successfully fetched response: its decoded JSON body (nil
// for a 304) plus the response headers and status, needed by the origin
// fetcher to extract cache validators.
type Page struct {
	StatusCode int
	Headers    http.Header
	JSON       any
	BodyLen    int
}

// Result aggregates every page fetched for one logical call, mirroring
// FromAPI in the predecessor.
type Result struct {
	Pages           []Page
	RequestsIssued  int
	BytesReceived   int
	FetchingTime    time.Duration
	MaybeMorePages  bool
}

// Fetcher issues HTTP requests with retry/backoff and pagination,
// optionally pacing outbound calls per host.
type Fetcher struct {
	client      *http.Client
	maxBodyLen  int64
	limiter     *hostLimiter
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the default client (useful for tests).
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMaxBodyBytes caps how much of a response body is read.
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBodyLen = n }
}

// WithPerHostRate paces outbound requests to ratePerSec per host, with
// burst headroom, using golang.org/x/time/rate.
func WithPerHostRate(ratePerSec float64, burst int) Option {
	return func(f *Fetcher) { f.limiter = newHostLimiter(ratePerSec, burst) }
}

// New constructs a Fetcher with the given options.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     &http.Client{},
		maxBodyLen: httputil.DefaultMaxResponseBodyBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SendWithRetries issues req, retrying on retryStatuses or transport
// errors for at most retry.MaxRetries attempts in total (the first try
// included) with exponential backoff (or the
// server's Retry-After, when present). It returns the first terminal
// response (200/304) it sees.
func (f *Fetcher) SendWithRetries(ctx context.Context, req Request, retry RetryConfig) (*http.Response, int, error) {
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = 1
	}
	if retry.RetryBackoff <= 0 {
		retry.RetryBackoff = 500 * time.Millisecond
	}

	var lastErr error
	issued := 0
	for attempt := 0; attempt < retry.MaxRetries; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, req.URL); err != nil {
				return nil, issued, err
			}
		}

		httpReq, err := f.buildRequest(ctx, req)
		if err != nil {
			return nil, issued, fmt.Errorf("httpfetch: build request: %w", err)
		}

		issued++
		resp, err := f.client.Do(httpReq)
		if err != nil {
			lastErr = err
			if !sleepBackoff(ctx, retry.RetryBackoff, attempt, "") {
				return nil, issued, ctx.Err()
			}
			continue
		}

		if goodStatuses[resp.StatusCode] {
			return resp, issued, nil
		}

		if retryStatuses[resp.StatusCode] {
			retryAfter := resp.Header.Get("Retry-After")
			resp.Body.Close()
			if !sleepBackoff(ctx, retry.RetryBackoff, attempt, retryAfter) {
				return nil, issued, ctx.Err()
			}
			continue
		}

		// Any other status is terminal and non-retryable.
		body, _ := httputil.ReadLimitedBody(resp.Body, f.maxBodyLen)
		resp.Body.Close()
		return nil, issued, fmt.Errorf("httpfetch: unexpected status %d from %s: %s", resp.StatusCode, req.URL, string(body))
	}

	return nil, issued, fmt.Errorf("httpfetch: exhausted %d attempts against %s: %w", retry.MaxRetries, req.URL, lastErr)
}

func (f *Fetcher) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	u := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u = u + sep + req.Query.Encode()
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var bodyReader *strings.Reader
	if req.Body != nil {
		bodyReader = strings.NewReader(string(req.Body))
	}
	var httpReq *http.Request
	var err error
	if bodyReader != nil {
		httpReq, err = http.NewRequestWithContext(ctx, method, u, bodyReader)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	return httpReq, nil
}

// sleepBackoff waits either retryAfter (if parseable) or an exponential
// backoff based on attempt, returning false if ctx was cancelled first.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int, retryAfter string) bool {
	wait := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if retryAfter != "" {
		if secs, err := strconv.ParseFloat(retryAfter, 64); err == nil && secs >= 0 {
			wait = time.Duration(secs * float64(time.Second))
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// FetchJSONPages fetches one logical call end-to-end: the first page,
// then successive pages per the pagination descriptor, up to maxPages or
// an estimated total derived from ParamTranslation. Content is assumed
// JSON; non-JSON bodies are a caller error.
func (f *Fetcher) FetchJSONPages(ctx context.Context, req Request, pagination *Pagination, maxPages int, retry RetryConfig) (Result, error) {
	if maxPages <= 0 {
		maxPages = 1
	}
	start := time.Now()
	result := Result{}

	query := cloneValues(req.Query)
	currentURL := req.URL
	baseURL, err := url.Parse(req.URL)
	if err != nil {
		return result, fmt.Errorf("httpfetch: parse request url %q: %w", req.URL, err)
	}
	var estimatedTotalPages int
	havePages := 0

	for havePages < maxPages && (estimatedTotalPages == 0 || havePages < estimatedTotalPages) {
		pageReq := req
		pageReq.URL = currentURL
		pageReq.Query = query

		resp, issued, err := f.SendWithRetries(ctx, pageReq, retry)
		result.RequestsIssued += issued
		if err != nil {
			result.FetchingTime = time.Since(start)
			return result, err
		}

		body, readErr := httputil.ReadLimitedBody(resp.Body, f.maxBodyLen)
		resp.Body.Close()
		if readErr != nil && readErr != httputil.ErrResponseBodyTooLarge {
			result.FetchingTime = time.Since(start)
			return result, fmt.Errorf("httpfetch: read body from %s: %w", currentURL, readErr)
		}

		page := Page{StatusCode: resp.StatusCode, Headers: resp.Header, BodyLen: len(body)}

		if resp.StatusCode == http.StatusNotModified {
			result.Pages = append(result.Pages, page)
			result.FetchingTime = time.Since(start)
			return result, nil
		}

		var decoded any
		if len(body) > 0 {
			if err := json.Unmarshal(body, &decoded); err != nil {
				result.FetchingTime = time.Since(start)
				return result, fmt.Errorf("httpfetch: pagination requires JSON, got unparseable body from %s: %w", currentURL, err)
			}
		}
		page.JSON = decoded
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.Atoi(cl); err == nil {
				result.BytesReceived += n
			} else {
				result.BytesReceived += len(body)
			}
		} else {
			result.BytesReceived += len(body)
		}

		result.Pages = append(result.Pages, page)
		havePages++

		if pagination == nil {
			break
		}

		if pagination.ParamTranslation != nil && estimatedTotalPages == 0 {
			if n, ok := estimateTotalPages(decoded, *pagination.ParamTranslation); ok {
				estimatedTotalPages = n
			}
		}

		if pagination.NextPath != "" {
			next, ok := extractJSONPath(decoded, pagination.NextPath)
			nextURL, isStr := next.(string)
			if !ok || !isStr || nextURL == "" {
				break
			}
			resolved, err := resolveNextURL(baseURL, nextURL)
			if err != nil {
				result.FetchingTime = time.Since(start)
				return result, fmt.Errorf("httpfetch: next page url %q: %w", nextURL, err)
			}
			currentURL = resolved
			query = url.Values{}
			continue
		}

		if len(pagination.PaginationParams) > 0 {
			newParams := url.Values{}
			for param, jsonPath := range pagination.PaginationParams {
				if v, ok := extractJSONPath(decoded, jsonPath); ok && v != nil {
					newParams.Set(param, fmt.Sprint(v))
				}
			}
			if len(newParams) == 0 {
				break
			}
			for k, vs := range newParams {
				query[k] = vs
			}
			continue
		}

		if pagination.ParamTranslation != nil && pagination.ParamTranslation.PageRef != "" {
			query.Set(pagination.ParamTranslation.PageRef, strconv.Itoa(havePages+1))
			continue
		}

		break
	}

	if havePages == maxPages {
		result.MaybeMorePages = true
	}
	if last := lastPage(result.Pages); last != nil {
		if hasPaginationLinkHeader(last.Headers) || hasPaginationKeys(last.JSON) {
			result.MaybeMorePages = true
		}
	}

	result.FetchingTime = time.Since(start)
	return result, nil
}

// resolveNextURL resolves a pagination next-page URL (absolute,
// host-relative, or path-relative) against base, the first request's URL,
// and rejects a result whose host differs from base's: the next URL must
// share the first URL's host, or the fetch fails outright rather than
// silently following a redirect to a different origin.
func resolveNextURL(base *url.URL, next string) (string, error) {
	parsed, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Host != base.Host {
		return "", fmt.Errorf("host %q does not match initial request host %q", resolved.Host, base.Host)
	}
	return resolved.String(), nil
}

func lastPage(pages []Page) *Page {
	if len(pages) == 0 {
		return nil
	}
	return &pages[len(pages)-1]
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func hasPaginationLinkHeader(headers http.Header) bool {
	link := strings.ToLower(headers.Get("Link"))
	return strings.Contains(link, `rel="next"`)
}

var paginationKeys = map[string]bool{"next": true, "next_page": true, "pagination": true, "links": true}

func hasPaginationKeys(decoded any) bool {
	m, ok := decoded.(map[string]any)
	if !ok {
		return false
	}
	for k := range m {
		if paginationKeys[k] {
			return true
		}
	}
	return false
}

// estimateTotalPages derives a page count from the first page's body
// using the page-size/total-size paths the spec provides, matching the
// predecessor's "only on the first page" estimation.
func estimateTotalPages(decoded any, pt ParamTranslation) (int, bool) {
	pageSize, ok1 := extractJSONPath(decoded, pt.PageSizePath)
	totalSize, ok2 := extractJSONPath(decoded, pt.TotalSizePath)
	if !ok1 || !ok2 {
		return 0, false
	}
	ps, ok := toFloat(pageSize)
	if !ok || ps <= 0 {
		return 0, false
	}
	ts, ok := toFloat(totalSize)
	if !ok {
		return 0, false
	}
	return int(math.Ceil(ts / ps)), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// extractJSONPath is a trivial dot-path extractor over decoded JSON
// (map[string]any nesting only, no array indexing) matching the
// predecessor's extract_json_path.
func extractJSONPath(decoded any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	cur := decoded
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
