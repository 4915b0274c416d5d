package tools

import (
	"encoding/json"
	"regexp"
	"strings"
)

// extractJSON pretty-prints a JSON body; unparseable input passes
// through raw.
func extractJSON(body []byte) (text, extractor string) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body), "raw"
	}
	formatted, _ := json.MarshalIndent(data, "", "  ")
	return string(formatted), "json"
}

// --- HTML extraction ---
//
// Regex-based extraction, not a DOM parser: good enough for article-like
// pages, and it keeps the fetch path dependency-free. Each rule rewrites
// one HTML construct into its markdown (or plain-text) equivalent; the
// rules run in order, structural removals first.

type htmlRule struct {
	re  *regexp.Regexp
	sub string
}

var htmlDropRules = []htmlRule{
	{regexp.MustCompile(`(?is)<script[\s\S]*?</script>`), ""},
	{regexp.MustCompile(`(?is)<style[\s\S]*?</style>`), ""},
	{regexp.MustCompile(`<!--[\s\S]*?-->`), ""},
	{regexp.MustCompile(`(?is)<nav[\s\S]*?</nav>`), ""},
	{regexp.MustCompile(`(?is)<header[\s\S]*?</header>`), ""},
	{regexp.MustCompile(`(?is)<footer[\s\S]*?</footer>`), ""},
}

var htmlMarkdownRules = []htmlRule{
	{regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`), "\n# $1\n"},
	{regexp.MustCompile(`(?is)<h2[^>]*>(.*?)</h2>`), "\n## $1\n"},
	{regexp.MustCompile(`(?is)<h3[^>]*>(.*?)</h3>`), "\n### $1\n"},
	{regexp.MustCompile(`(?is)<h([4-6])[^>]*>(.*?)</h[4-6]>`), "\n#### $2\n"},
	{regexp.MustCompile(`(?is)<pre[^>]*>(.*?)</pre>`), "\n```\n$1\n```\n"},
	{regexp.MustCompile(`(?is)<code[^>]*>(.*?)</code>`), "`$1`"},
	{regexp.MustCompile(`(?is)<a[^>]*href="([^"]*)"[^>]*>(.*?)</a>`), "[$2]($1)"},
	{regexp.MustCompile(`(?is)<img[^>]*alt="([^"]*)"[^>]*/?>`), "![$1]"},
	{regexp.MustCompile(`(?is)<(?:strong|b)\b[^>]*>(.*?)</(?:strong|b)>`), "**$1**"},
	{regexp.MustCompile(`(?is)<(?:em|i)[^>]*>(.*?)</(?:em|i)>`), "*$1*"},
	{regexp.MustCompile(`(?is)<blockquote[^>]*>(.*?)</blockquote>`), "\n> $1\n"},
	{regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`), "\n- $1"},
	{regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`), "\n$1\n"},
	{regexp.MustCompile(`(?i)<br\s*/?>`), "\n"},
}

var htmlTextRules = []htmlRule{
	{regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`), "\n$1\n"},
	{regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`), "\n- $1"},
	{regexp.MustCompile(`(?i)<br\s*/?>`), "\n"},
}

var (
	anyTagRe  = regexp.MustCompile(`<[^>]+>`)
	multiNLRe = regexp.MustCompile(`\n{3,}`)
	multiSPRe = regexp.MustCompile(`[ \t]{2,}`)
)

func applyRules(s string, rules []htmlRule) string {
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.sub)
	}
	return s
}

// htmlToMarkdown converts HTML to a markdown-ish rendering.
func htmlToMarkdown(html string) string {
	s := applyRules(html, htmlDropRules)
	s = applyRules(s, htmlMarkdownRules)
	s = anyTagRe.ReplaceAllString(s, "")
	s = decodeHTMLEntities(s)
	s = multiSPRe.ReplaceAllString(s, " ")
	s = multiNLRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// htmlToText extracts plain text, dropping all formatting.
func htmlToText(html string) string {
	s := applyRules(html, htmlDropRules)
	s = applyRules(s, htmlTextRules)
	s = anyTagRe.ReplaceAllString(s, "")
	s = decodeHTMLEntities(s)
	s = multiSPRe.ReplaceAllString(s, " ")

	var clean []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			clean = append(clean, line)
		}
	}
	return strings.Join(clean, "\n")
}

var (
	mdHeadingRe = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdCodeRe    = regexp.MustCompile("`[^`]+`")
	mdImageRe   = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdLinkRe    = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
)

// markdownToText strips markdown syntax for text extraction mode.
func markdownToText(md string) string {
	s := mdHeadingRe.ReplaceAllString(md, "")
	s = strings.NewReplacer("**", "", "__", "").Replace(s)
	s = mdCodeRe.ReplaceAllStringFunc(s, func(m string) string { return strings.Trim(m, "`") })
	s = mdImageRe.ReplaceAllString(s, "$1")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = multiNLRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

var htmlEntityReplacer = strings.NewReplacer(
	"&amp;", "&", "&lt;", "<", "&gt;", ">",
	"&quot;", `"`, "&#39;", "'", "&apos;", "'",
	"&nbsp;", " ", "&mdash;", "—", "&ndash;", "–",
	"&hellip;", "...", "&bull;", "•",
	"&copy;", "(c)", "&reg;", "(R)", "&trade;", "(TM)",
)

func decodeHTMLEntities(s string) string {
	return htmlEntityReplacer.Replace(s)
}
