package sessions

import "testing"

func TestParseIDFullKey(t *testing.T) {
	id, err := ParseID("agent:research:telegram:group:12345")
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	want := ID{AgentID: "research", Channel: "telegram", Scope: "group", ChatID: "12345"}
	if id != want {
		t.Fatalf("ParseID = %+v, want %+v", id, want)
	}
	if id.Format() != "agent:research:telegram:group:12345" {
		t.Errorf("Format round trip = %q", id.Format())
	}
}

func TestParseIDShortKeyDegradesToSimple(t *testing.T) {
	id, err := ParseID("agent:main:leftover")
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if id.AgentID != "main" || id.ChatID != "main:leftover" {
		t.Fatalf("short key parse = %+v", id)
	}
}

func TestParseIDOrDefaultUnparseable(t *testing.T) {
	id := ParseIDOrDefault("cli:42")
	if id.AgentID != DefaultAgentID || id.ChatID != "cli:42" {
		t.Fatalf("unparseable key fallback = %+v, want Simple(main, key)", id)
	}
}

func TestParseIDEmptyKeyErrors(t *testing.T) {
	if _, err := ParseID(""); err == nil {
		t.Fatal("ParseID(\"\") should error")
	}
}
