package approval

import "testing"

func TestParseResponseText(t *testing.T) {
	cases := []struct {
		text     string
		approved bool
		ok       bool
	}{
		{"同意", true, true},
		{"  OK  ", true, true},
		{"yes", true, true},
		{"Y", true, true},
		{"拒绝", false, true},
		{"no", false, true},
		{"maybe later", false, false},
	}

	for _, c := range cases {
		approved, ok := ParseResponseText(c.text)
		if ok != c.ok || (ok && approved != c.approved) {
			t.Errorf("ParseResponseText(%q) = (%v, %v), want (%v, %v)", c.text, approved, ok, c.approved, c.ok)
		}
	}
}

func TestParseResponseTextPartialNotRecognized(t *testing.T) {
	if _, ok := ParseResponseText("yes please"); ok {
		t.Error("expected partial match 'yes please' to not be recognized")
	}
}

func TestPolicyClassifyFirstMatchWins(t *testing.T) {
	p := Policy{
		Rules: []Rule{
			{Pattern: "rm*", Level: LevelDeny},
			{Pattern: "git push*", Level: LevelRequireApproval},
		},
		DefaultLevel: LevelAllow,
	}
	if got := p.Classify("rm", []string{"/tmp/x"}); got != LevelDeny {
		t.Errorf("rm classify = %v, want Deny", got)
	}
	if got := p.Classify("git", []string{"push", "origin", "main"}); got != LevelRequireApproval {
		t.Errorf("git push classify = %v, want RequireApproval", got)
	}
	if got := p.Classify("ls", []string{"-la"}); got != LevelAllow {
		t.Errorf("ls classify = %v, want default Allow", got)
	}
}
