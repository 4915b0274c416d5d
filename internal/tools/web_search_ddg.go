package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// ddgBackend scrapes the keyless DuckDuckGo HTML endpoint. It is the
// zero-configuration default; result quality trails the API-backed
// backends, so it sits last in the fallback chain when others are
// configured.
type ddgBackend struct {
	client *http.Client
}

func newDDGBackend() *ddgBackend {
	return &ddgBackend{client: SharedWebClient()}
}

func (b *ddgBackend) Name() string { return "duckduckgo" }

const ddgHTMLEndpoint = "https://html.duckduckgo.com/html/"

var (
	ddgResultRe  = regexp.MustCompile(`(?s)<a[^>]+class="[^"]*result__a[^"]*"[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet[^"]*"[^>]*>(.*?)</a>`)
	stripTagsRe  = regexp.MustCompile(`<[^>]+>`)
)

func (b *ddgBackend) Search(ctx context.Context, params searchParams) ([]searchResult, error) {
	if err := waitWebLimiter(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ddgHTMLEndpoint+"?q="+url.QueryEscape(params.Query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", webSearchUserAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: read body: %w", err)
	}

	return parseDDGHTML(string(body), params.Count), nil
}

// parseDDGHTML pulls result links and snippets out of the HTML page.
// Links come wrapped in DDG's redirect URL; the real target hides in the
// uddg query parameter.
func parseDDGHTML(html string, count int) []searchResult {
	links := ddgResultRe.FindAllStringSubmatch(html, count+5)
	snippets := ddgSnippetRe.FindAllStringSubmatch(html, count+5)

	var out []searchResult
	for i, m := range links {
		if len(out) >= count {
			break
		}
		r := searchResult{
			URL:   unwrapDDGRedirect(m[1]),
			Title: cleanHTMLFragment(m[2]),
		}
		if i < len(snippets) {
			r.Description = cleanHTMLFragment(snippets[i][1])
		}
		if r.URL != "" && r.Title != "" {
			out = append(out, r)
		}
	}
	return out
}

func unwrapDDGRedirect(raw string) string {
	if !strings.Contains(raw, "uddg=") {
		return raw
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	idx := strings.Index(decoded, "uddg=")
	if idx < 0 {
		return raw
	}
	target := decoded[idx+len("uddg="):]
	if amp := strings.IndexByte(target, '&'); amp >= 0 {
		target = target[:amp]
	}
	return target
}

func cleanHTMLFragment(s string) string {
	return strings.TrimSpace(decodeHTMLEntities(stripTagsRe.ReplaceAllString(s, "")))
}
