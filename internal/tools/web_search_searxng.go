package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// searxngBackend queries a self-hosted SearxNG instance's JSON API.
// SearxNG aggregates upstream engines server-side, so a single request
// already fans out; we only page the first result set.
type searxngBackend struct {
	baseURL string
	client  *http.Client
}

func newSearxNGBackend(baseURL string) *searxngBackend {
	return &searxngBackend{baseURL: strings.TrimSuffix(baseURL, "/"), client: SharedWebClient()}
}

func (b *searxngBackend) Name() string { return "searxng" }

func (b *searxngBackend) Search(ctx context.Context, params searchParams) ([]searchResult, error) {
	if err := waitWebLimiter(ctx); err != nil {
		return nil, err
	}

	q := url.Values{"q": {params.Query}, "format": {"json"}}
	if params.SearchLang != "" {
		q.Set("language", params.SearchLang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", webSearchUserAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("searxng: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng: status %d: %s", resp.StatusCode, truncateStr(string(body), 200))
	}

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("searxng: parse response: %w", err)
	}

	out := make([]searchResult, 0, params.Count)
	for _, r := range parsed.Results {
		if len(out) >= params.Count {
			break
		}
		out = append(out, searchResult{Title: r.Title, URL: r.URL, Description: r.Content})
	}
	return out, nil
}
