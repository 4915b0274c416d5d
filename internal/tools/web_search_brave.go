package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// braveBackend queries the Brave Search API. It requires an API key; the
// config layer rejects a "brave" backend selection with an empty key at
// startup rather than letting it fail silently per search.
type braveBackend struct {
	apiKey string
	client *http.Client
}

func newBraveBackend(apiKey string) *braveBackend {
	return &braveBackend{apiKey: apiKey, client: SharedWebClient()}
}

func (b *braveBackend) Name() string { return "brave" }

func (b *braveBackend) Search(ctx context.Context, params searchParams) ([]searchResult, error) {
	if err := waitWebLimiter(ctx); err != nil {
		return nil, err
	}

	q := url.Values{"q": {params.Query}, "count": {strconv.Itoa(params.Count)}}
	if params.Country != "" {
		q.Set("country", params.Country)
	}
	if params.SearchLang != "" {
		q.Set("search_lang", params.SearchLang)
	}
	if params.UILang != "" {
		q.Set("ui_lang", params.UILang)
	}
	if f := normalizeFreshness(params.Freshness); f != "" {
		q.Set("freshness", f)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveSearchEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("brave: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave: status %d: %s", resp.StatusCode, truncateStr(string(body), 200))
	}

	var parsed struct {
		Web struct {
			Results []searchResult `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("brave: parse response: %w", err)
	}
	return parsed.Web.Results, nil
}
