package httpfetch

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter paces outbound requests per origin host so a burst of
// concurrent plan entries against the same upstream doesn't hammer it,
// independent of the retry/backoff applied to any single request.
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	ratePerSec float64
	burst      int
}

func newHostLimiter(ratePerSec float64, burst int) *hostLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &hostLimiter{
		limiters:   make(map[string]*rate.Limiter),
		ratePerSec: ratePerSec,
		burst:      burst,
	}
}

func (h *hostLimiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	return h.limiterFor(host).Wait(ctx)
}

func (h *hostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(h.ratePerSec), h.burst)
		h.limiters[host] = l
	}
	return l
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
