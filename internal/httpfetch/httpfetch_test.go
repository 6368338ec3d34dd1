package httpfetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendWithRetries_SucceedsOnFirstGoodStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New()
	resp, issued, err := f.SendWithRetries(context.Background(), Request{URL: srv.URL}, DefaultRetryConfig())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 1, issued)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSendWithRetries_RetriesOnRetriableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := New()
	resp, issued, err := f.SendWithRetries(context.Background(), Request{URL: srv.URL},
		RetryConfig{MaxRetries: 5, RetryBackoff: time.Millisecond})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 3, issued)
}

func TestSendWithRetries_NonRetriableStatusFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New()
	_, issued, err := f.SendWithRetries(context.Background(), Request{URL: srv.URL},
		RetryConfig{MaxRetries: 5, RetryBackoff: time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, issued)
}

func TestSendWithRetries_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New()
	_, issued, err := f.SendWithRetries(context.Background(), Request{URL: srv.URL},
		RetryConfig{MaxRetries: 3, RetryBackoff: time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, 3, issued)
}

func TestFetchJSONPages_NextPathCursor(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n < 3 {
			// host-relative next URL: the common real-world shape, and the
			// one that must resolve against the first request's host
			// rather than being used as a literal request target.
			fmt.Fprintf(w, `{"items":[%d],"next":"/page/%d"}`, n, n+1)
			return
		}
		fmt.Fprintf(w, `{"items":[%d]}`, n)
	}))
	defer srv.Close()

	f := New()
	pagination := &Pagination{Type: PaginationCursor, NextPath: "next"}
	result, err := f.FetchJSONPages(context.Background(), Request{URL: srv.URL}, pagination, 10, DefaultRetryConfig())
	require.NoError(t, err)
	assert.Len(t, result.Pages, 3)
	assert.False(t, result.MaybeMorePages)
}

func TestFetchJSONPages_NextPathAbsoluteSameHostResolves(t *testing.T) {
	var calls atomic.Int32
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n < 2 {
			fmt.Fprintf(w, `{"items":[%d],"next":"%s/page/2"}`, n, srvURL)
			return
		}
		fmt.Fprintf(w, `{"items":[%d]}`, n)
	}))
	defer srv.Close()
	srvURL = srv.URL

	f := New()
	pagination := &Pagination{Type: PaginationCursor, NextPath: "next"}
	result, err := f.FetchJSONPages(context.Background(), Request{URL: srv.URL}, pagination, 10, DefaultRetryConfig())
	require.NoError(t, err)
	assert.Len(t, result.Pages, 2)
}

func TestFetchJSONPages_NextPathCrossHostFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[1],"next":"http://attacker.example/page/2"}`)
	}))
	defer srv.Close()

	f := New()
	pagination := &Pagination{Type: PaginationCursor, NextPath: "next"}
	_, err := f.FetchJSONPages(context.Background(), Request{URL: srv.URL}, pagination, 10, DefaultRetryConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match initial request host")
}

func TestFetchJSONPages_PaginationParamsOverlay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		if page == "" || page == "1" {
			fmt.Fprint(w, `{"page":2}`)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := New()
	pagination := &Pagination{
		Type:             PaginationPage,
		PaginationParams: map[string]string{"page": "page"},
	}
	result, err := f.FetchJSONPages(context.Background(), Request{URL: srv.URL}, pagination, 10, DefaultRetryConfig())
	require.NoError(t, err)
	assert.Len(t, result.Pages, 2)
}

func TestFetchJSONPages_ParamTranslationPageRefAdvances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"page":"%s","page_size":1,"total":3}`, page)
	}))
	defer srv.Close()

	f := New()
	pagination := &Pagination{
		ParamTranslation: &ParamTranslation{
			PageRef:       "page",
			PageSizePath:  "page_size",
			TotalSizePath: "total",
		},
	}
	result, err := f.FetchJSONPages(context.Background(), Request{URL: srv.URL}, pagination, 10, DefaultRetryConfig())
	require.NoError(t, err)
	assert.Len(t, result.Pages, 3)
}

func TestFetchJSONPages_MaxPagesCapSignalsMaybeMore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"next":"%s"}`, r.URL.String())
	}))
	defer srv.Close()

	f := New()
	pagination := &Pagination{NextPath: "next"}
	result, err := f.FetchJSONPages(context.Background(), Request{URL: srv.URL}, pagination, 3, DefaultRetryConfig())
	require.NoError(t, err)
	assert.Len(t, result.Pages, 3)
	assert.True(t, result.MaybeMorePages)
}

func TestExtractJSONPath(t *testing.T) {
	decoded := map[string]any{"a": map[string]any{"b": "value"}}
	v, ok := extractJSONPath(decoded, "a.b")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	_, ok = extractJSONPath(decoded, "a.c")
	assert.False(t, ok)
}

func TestEstimateTotalPages(t *testing.T) {
	decoded := map[string]any{"page_size": float64(10), "total": float64(95)}
	n, ok := estimateTotalPages(decoded, ParamTranslation{PageSizePath: "page_size", TotalSizePath: "total"})
	require.True(t, ok)
	assert.Equal(t, 10, n)
}

func TestHostLimiter_ResolvesHostAndAdmitsFirstRequest(t *testing.T) {
	h := newHostLimiter(1000, 1)
	u, _ := url.Parse("http://example.com/path")
	assert.Equal(t, "example.com", hostOf(u.String()))
	require.NoError(t, h.Wait(context.Background(), u.String()))
}
