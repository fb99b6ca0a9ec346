package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SelfPinger keeps free-tier hosts awake by requesting the bot's own /health.
type SelfPinger struct {
	URL      string
	Interval time.Duration
	Client   *http.Client
}

// Ping issues one GET {URL}/health.
func (p *SelfPinger) Ping(ctx context.Context) error {
	target := strings.TrimRight(p.URL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("op=selfping.Ping: %w", err)
	}
	hc := p.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("op=selfping.Ping: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("op=selfping.Ping: status %d", resp.StatusCode)
	}
	return nil
}

// Run pings every Interval until ctx is cancelled. Failures are logged only.
func (p *SelfPinger) Run(ctx context.Context) {
	if p.URL == "" {
		return
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Ping(ctx); err != nil {
				slog.Warn("self ping failed", slog.String("url", p.URL), slog.Any("error", err))
			}
		}
	}
}
