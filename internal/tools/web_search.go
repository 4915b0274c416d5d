package tools

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

const (
	defaultSearchCount   = 5
	maxSearchCount       = 10
	braveSearchEndpoint  = "https://api.search.brave.com/res/v1/web/search"
	webSearchUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// SearchBackend is one pluggable web search implementation.
type SearchBackend interface {
	Search(ctx context.Context, params searchParams) ([]searchResult, error)
	Name() string
}

type searchParams struct {
	Query      string
	Count      int
	Country    string
	SearchLang string
	UILang     string
	Freshness  string
}

type searchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// --- freshness validation ---

var (
	freshnessShortcuts = map[string]bool{"pd": true, "pw": true, "pm": true, "py": true}
	freshnessRangeRe   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})to(\d{4}-\d{2}-\d{2})$`)
)

// normalizeFreshness accepts the pd/pw/pm/py shortcuts or a
// YYYY-MM-DDtoYYYY-MM-DD range; anything else is dropped.
func normalizeFreshness(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return ""
	}
	if freshnessShortcuts[v] {
		return v
	}
	if m := freshnessRangeRe.FindStringSubmatch(v); len(m) == 3 {
		start, errS := time.Parse("2006-01-02", m[1])
		end, errE := time.Parse("2006-01-02", m[2])
		if errS == nil && errE == nil && !start.After(end) {
			return v
		}
	}
	return ""
}

// WebSearchConfig selects and configures the search backends. Backend
// names the preferred one ("brave", "searxng", "duckduckgo"); the others
// that are usable with the given credentials form the fallback chain.
type WebSearchConfig struct {
	Backend     string
	BraveAPIKey string
	SearxNGURL  string
	SearchCount int
	CacheTTL    time.Duration
}

// WebSearchTool implements the web_search tool over an ordered backend
// chain: the first backend that answers wins.
type WebSearchTool struct {
	backends []SearchBackend
	count    int
	cache    *webCache
}

// NewWebSearchTool builds the tool. The keyless DuckDuckGo scrape is
// always present at the end of the chain, so the tool is usable with an
// empty config.
func NewWebSearchTool(cfg WebSearchConfig) *WebSearchTool {
	var chain []SearchBackend
	add := func(b SearchBackend) {
		for _, existing := range chain {
			if existing.Name() == b.Name() {
				return
			}
		}
		chain = append(chain, b)
	}

	// Preferred backend first.
	switch cfg.Backend {
	case "brave":
		if cfg.BraveAPIKey != "" {
			add(newBraveBackend(cfg.BraveAPIKey))
		}
	case "searxng":
		if cfg.SearxNGURL != "" {
			add(newSearxNGBackend(cfg.SearxNGURL))
		}
	}
	// Remaining usable backends as fallbacks, keyless scrape last.
	if cfg.BraveAPIKey != "" {
		add(newBraveBackend(cfg.BraveAPIKey))
	}
	if cfg.SearxNGURL != "" {
		add(newSearxNGBackend(cfg.SearxNGURL))
	}
	add(newDDGBackend())

	count := cfg.SearchCount
	if count <= 0 || count > maxSearchCount {
		count = defaultSearchCount
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &WebSearchTool{
		backends: chain,
		count:    count,
		cache:    newWebCache(defaultCacheMaxEntries, ttl),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for current information. Returns titles, URLs, and snippets from search results."
}

func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query string.",
			},
			"count": map[string]interface{}{
				"type":        "number",
				"description": "Number of results to return (1-10).",
				"minimum":     1.0,
				"maximum":     float64(maxSearchCount),
			},
			"country": map[string]interface{}{
				"type":        "string",
				"description": "2-letter country code for region-specific results (e.g. 'DE', 'US').",
			},
			"search_lang": map[string]interface{}{
				"type":        "string",
				"description": "ISO language code for search results (e.g. 'de', 'en').",
			},
			"freshness": map[string]interface{}{
				"type":        "string",
				"description": "Filter by discovery time: 'pd', 'pw', 'pm', 'py', or 'YYYY-MM-DDtoYYYY-MM-DD'.",
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return ErrorResult("query is required")
	}

	count := t.count
	if c, ok := args["count"].(float64); ok && int(c) >= 1 && int(c) <= maxSearchCount {
		count = int(c)
	}
	country, _ := args["country"].(string)
	searchLang, _ := args["search_lang"].(string)
	freshness, _ := args["freshness"].(string)

	params := searchParams{
		Query:      query,
		Count:      count,
		Country:    country,
		SearchLang: searchLang,
		Freshness:  freshness,
	}

	cacheKey := searchCacheKey(params)
	if cached, ok := t.cache.get(cacheKey); ok {
		slog.Debug("web_search cache hit", "query", query)
		return NewResult(cached)
	}

	var lastErr error
	for _, backend := range t.backends {
		results, err := backend.Search(ctx, params)
		if err != nil {
			slog.Warn("web_search backend failed", "backend", backend.Name(), "error", err)
			lastErr = err
			continue
		}
		formatted := formatSearchResults(query, results, backend.Name())
		wrapped := wrapExternalContent(formatted, "Web Search", false)
		t.cache.set(cacheKey, wrapped)
		return NewResult(wrapped)
	}

	if lastErr != nil {
		return ErrorResult(fmt.Sprintf("all search backends failed: %v", lastErr))
	}
	return ErrorResult("no search backends configured")
}

func searchCacheKey(p searchParams) string {
	return strings.Join([]string{
		p.Query, fmt.Sprintf("%d", p.Count), p.Country, p.SearchLang, p.Freshness,
	}, "\x00")
}

func formatSearchResults(query string, results []searchResult, backend string) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for: %s", query)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for: %s (via %s)\n\n", query, backend)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Description)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
