package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

const (
	defaultProbeTimeout  = 3 * time.Second
	defaultNegativeCache = 10 * time.Second
)

// Prober answers "is this URL reachable right now" with a short deadline and
// a negative cache, so an offline host is not re-dialled on every request.
// Successful probes are never cached; reachability is cheap to reconfirm and
// staleness there would route requests at a host that just left.
type Prober struct {
	client       *http.Client
	timeout      time.Duration
	negativeTTL  time.Duration
	failedProbes *xsync.Map[string, time.Time]
}

func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Prober{
		client: &http.Client{
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
		timeout:      timeout,
		negativeTTL:  defaultNegativeCache,
		failedProbes: xsync.NewMap[string, time.Time](),
	}
}

// IsReachable probes url with HEAD, falling back to GET for servers that
// reject HEAD outright. Any HTTP response, including errors, counts as
// reachable; only transport-level failure does not.
func (p *Prober) IsReachable(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}

	if failedAt, ok := p.failedProbes.Load(url); ok {
		if time.Since(failedAt) < p.negativeTTL {
			return false
		}
		p.failedProbes.Delete(url)
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.attempt(probeCtx, http.MethodHead, url) || p.attempt(probeCtx, http.MethodGet, url) {
		return true
	}

	p.failedProbes.Store(url, time.Now())
	return false
}

func (p *Prober) attempt(ctx context.Context, method, url string) bool {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Forget drops any cached failure for url, forcing the next probe to dial.
func (p *Prober) Forget(url string) {
	p.failedProbes.Delete(url)
}
