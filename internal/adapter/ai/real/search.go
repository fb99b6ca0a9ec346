package real

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/keypool"
)

const maxSearchResults = 5

// Tavily is the keyed web search provider.
type Tavily struct {
	baseURL string
	pool    *keypool.Pool
	hc      *http.Client
}

// NewTavily builds the Tavily provider.
func NewTavily(baseURL string, pool *keypool.Pool, hc *http.Client) *Tavily {
	return &Tavily{baseURL: strings.TrimRight(baseURL, "/"), pool: pool, hc: hc}
}

func (t *Tavily) Name() string { return "tavily" }

// Enabled reports whether the provider has credentials.
func (t *Tavily) Enabled() bool { return t.pool.Configured() }

func (t *Tavily) Search(ctx context.Context, query string) (domain.SearchResponse, error) {
	body, _ := json.Marshal(map[string]any{
		"query":          query,
		"max_results":    maxSearchResults,
		"include_answer": true,
	})
	return keypool.Execute(ctx, t.pool, func(ctx context.Context, key string) (domain.SearchResponse, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
		if err != nil {
			return domain.SearchResponse{}, err
		}
		r.Header.Set("Authorization", "Bearer "+key)
		r.Header.Set("Content-Type", "application/json")
		var out struct {
			Answer  string `json:"answer"`
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Content string `json:"content"`
			} `json:"results"`
		}
		if err := sendJSON(ctx, t.hc, t.Name(), r, &out); err != nil {
			return domain.SearchResponse{}, err
		}
		resp := domain.SearchResponse{Provider: t.Name(), Answer: strings.TrimSpace(out.Answer)}
		for _, res := range out.Results {
			resp.Results = append(resp.Results, domain.SearchResult{Title: res.Title, URL: res.URL, Snippet: res.Content})
		}
		if resp.Answer == "" && len(resp.Results) == 0 {
			return domain.SearchResponse{}, emptyAnswer(t.Name())
		}
		return resp, nil
	})
}

// DuckDuckGo queries the keyless instant answer API.
type DuckDuckGo struct {
	baseURL string
	hc      *http.Client
}

// NewDuckDuckGo builds the free search provider.
func NewDuckDuckGo(baseURL string, hc *http.Client) *DuckDuckGo {
	return &DuckDuckGo{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) (domain.SearchResponse, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/?"+q.Encode(), nil)
	if err != nil {
		return domain.SearchResponse{}, err
	}
	var out struct {
		Heading       string     `json:"Heading"`
		AbstractText  string     `json:"AbstractText"`
		AbstractURL   string     `json:"AbstractURL"`
		Answer        string     `json:"Answer"`
		RelatedTopics []ddgTopic `json:"RelatedTopics"`
	}
	if err := sendJSON(ctx, d.hc, d.Name(), r, &out); err != nil {
		return domain.SearchResponse{}, err
	}
	resp := domain.SearchResponse{Provider: d.Name(), Answer: strings.TrimSpace(out.Answer)}
	if out.AbstractText != "" {
		if resp.Answer == "" {
			resp.Answer = out.AbstractText
		}
		resp.Results = append(resp.Results, domain.SearchResult{Title: out.Heading, URL: out.AbstractURL, Snippet: out.AbstractText})
	}
	var walk func(ts []ddgTopic)
	walk = func(ts []ddgTopic) {
		for _, t := range ts {
			if len(resp.Results) >= maxSearchResults {
				return
			}
			if len(t.Topics) > 0 {
				walk(t.Topics)
				continue
			}
			if t.Text != "" {
				resp.Results = append(resp.Results, domain.SearchResult{Title: t.Text, URL: t.FirstURL, Snippet: t.Text})
			}
		}
	}
	walk(out.RelatedTopics)
	if resp.Answer == "" && len(resp.Results) == 0 {
		return domain.SearchResponse{}, emptyAnswer(d.Name())
	}
	return resp, nil
}

var (
	_ domain.SearchProvider = (*Tavily)(nil)
	_ domain.SearchProvider = (*DuckDuckGo)(nil)
)
