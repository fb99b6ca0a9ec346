package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

// Banner is the plain-text body of GET /.
const Banner = "🤖 AI relay bot is running"

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Server aggregates handler dependencies.
type Server struct {
	Checks       []Check
	CheckTimeout time.Duration
}

// NewServer builds a Server from readiness probes.
func NewServer(checks ...Check) *Server {
	return &Server{Checks: checks, CheckTimeout: 2 * time.Second}
}

// RootHandler serves the liveness banner.
func (s *Server) RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(Banner))
	}
}

// HealthHandler answers the keep-alive ping.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler runs every probe and reports 503 when any fails.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		timeout := s.CheckTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		results := make([]check, 0, len(s.Checks))
		ok := true
		for _, c := range s.Checks {
			if c.Probe == nil {
				continue
			}
			if err := c.Probe(ctx); err != nil {
				ok = false
				results = append(results, check{Name: c.Name, Details: err.Error()})
				continue
			}
			results = append(results, check{Name: c.Name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": results})
	}
}

// NotFoundHandler replies with the JSON error envelope.
func (s *Server) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, domain.ErrNotFound, map[string]string{"path": r.URL.Path})
	}
}
