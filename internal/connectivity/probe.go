package connectivity

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"taskmanager/internal/logger"
)

// Prober checks the server health endpoint.
type Prober struct {
	url     string
	client  *http.Client
	timeout time.Duration
	log     *zap.SugaredLogger
}

func NewProber(serverURL string, timeout time.Duration, log *zap.SugaredLogger) *Prober {
	return &Prober{
		url:     serverURL + "/healthz",
		client:  &http.Client{},
		timeout: timeout,
		log:     logger.OrNop(log),
	}
}

// Probe performs one check. Any 2xx counts as online.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.log.Warnf("[net][probe][err] build request: %v", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debugf("[net][probe] offline: %v", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Watch feeds m with a probe result every interval until ctx is done.
func (p *Prober) Watch(ctx context.Context, m *Monitor, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Set(p.Probe(ctx))
		}
	}
}
