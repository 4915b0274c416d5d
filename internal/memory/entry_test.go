package memory

import "testing"

func TestParseFrontMatterInlineList(t *testing.T) {
	content := "---\ntags: [work, travel]\n---\nBody text here.\n"
	tags, body := parseFrontMatter(content)
	if len(tags) != 2 || tags[0] != "work" || tags[1] != "travel" {
		t.Fatalf("tags = %v, want [work travel]", tags)
	}
	if body != "Body text here.\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestParseFrontMatterDashList(t *testing.T) {
	content := "---\ntags:\n  - a\n  - b\n---\nrest\n"
	tags, body := parseFrontMatter(content)
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Fatalf("tags = %v, want [a b]", tags)
	}
	if body != "rest\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestParseFrontMatterAbsent(t *testing.T) {
	tags, body := parseFrontMatter("no front matter here")
	if tags != nil {
		t.Fatalf("tags = %v, want nil", tags)
	}
	if body != "no front matter here" {
		t.Fatalf("body changed unexpectedly: %q", body)
	}
}

func TestAnyTagMatches(t *testing.T) {
	if !anyTagMatches([]string{"work", "personal"}, []string{"work"}) {
		t.Error("expected overlap to match")
	}
	if anyTagMatches([]string{"personal"}, []string{"work"}) {
		t.Error("expected no overlap to not match")
	}
	// An empty "want" set is the caller's signal for "no constraint"; Search
	// short-circuits on len(tags) == 0 before calling anyTagMatches at all.
	if anyTagMatches([]string{"work"}, nil) {
		t.Error("anyTagMatches itself treats an empty want set as no match")
	}
}
