package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/approval"
)

func TestValidateCollectsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.Agent.Temperature = 3.5
	cfg.Agent.MaxTokens = 0
	cfg.Agent.Workspace = ""
	cfg.Memory.VectorWeight = 1.5
	cfg.Memory.TextWeight = -0.1

	errs := cfg.Validate()
	if len(errs) != 5 {
		t.Fatalf("Validate returned %d errors, want all 5: %v", len(errs), errs)
	}
}

func TestValidateDefaultsAreValid(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Fatalf("default config should validate: %v", errs)
	}
}

func TestValidateBraveBackendRequiresKey(t *testing.T) {
	cfg := Default()
	cfg.Tools.Web.SearchBackend = "brave"
	errs := cfg.Validate()
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "brave") {
		t.Fatalf("brave backend without key = %v, want a configuration error", errs)
	}

	cfg.Tools.Web.Brave.APIKey = "k"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("brave backend with key should validate: %v", errs)
	}
}

func TestValidateSearxNGBackendRequiresURL(t *testing.T) {
	cfg := Default()
	cfg.Tools.Web.SearchBackend = "searxng"
	if errs := cfg.Validate(); len(errs) != 1 {
		t.Fatalf("searxng backend without url = %v", errs)
	}
	cfg.Tools.Web.SearxNGURL = "http://searx.local"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("searxng backend with url should validate: %v", errs)
	}
}

func TestValidateRoleNames(t *testing.T) {
	cfg := Default()
	cfg.Agent.Roles = []RoleSpec{
		{Name: "research"},
		{Name: "research"},
		{Name: "has space"},
	}
	errs := cfg.Validate()
	joined := ""
	for _, e := range errs {
		joined += e.Error() + ";"
	}
	if !strings.Contains(joined, "duplicate") || !strings.Contains(joined, "must match") {
		t.Fatalf("role validation errors = %v", errs)
	}
}

func TestValidateSingleDefaultRole(t *testing.T) {
	cfg := Default()
	cfg.Agent.Roles = []RoleSpec{
		{Name: "a", Default: true},
		{Name: "b", Default: true},
	}
	errs := cfg.Validate()
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "default") {
		t.Fatalf("two default roles = %v", errs)
	}
}

func TestSaveRotatesBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	for i := 0; i < 7; i++ {
		cfg.Agent.Model = strings.Repeat("m", i+1)
		if err := Save(path, cfg); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	backups := ListBackups(path)
	if len(backups) != maxBackups {
		t.Fatalf("backups = %v, want exactly %d", backups, maxBackups)
	}
	for i := 1; i <= maxBackups; i++ {
		if _, err := os.Stat(backupPath(path, i)); err != nil {
			t.Errorf("missing backup slot %d: %v", i, err)
		}
	}
	if _, err := os.Stat(backupPath(path, maxBackups+1)); err == nil {
		t.Error("backup beyond the rotation window exists")
	}

	// The newest backup holds the previous save's content.
	prev, err := os.ReadFile(backupPath(path, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(prev), strings.Repeat("m", 6)) {
		t.Errorf("newest backup does not hold the penultimate config")
	}
}

func TestLoadToleratesJSON5(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := `{
	// hand-edited config with comments and a trailing comma
	"agent": {
		"workspace": "` + dir + `",
		"provider": "anthropic",
		"model": "claude-sonnet-4-5-20250929",
		"maxTokens": 4096,
		"temperature": 0.5,
	},
}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load JSON5: %v", err)
	}
	if cfg.Agent.MaxTokens != 4096 || cfg.Agent.Temperature != 0.5 {
		t.Errorf("loaded agent config = %+v", cfg.Agent)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load of missing file: %v", err)
	}
	if cfg.Agent.Provider == "" {
		t.Error("defaults not applied for missing file")
	}
}

func TestFlexibleStringSlice(t *testing.T) {
	var f FlexibleStringSlice
	if err := f.UnmarshalJSON([]byte(`["a", 42, true]`)); err != nil {
		t.Fatal(err)
	}
	if len(f) != 3 || f[0] != "a" || f[1] != "42" || f[2] != "true" {
		t.Errorf("mixed slice = %v", f)
	}
}

func TestToApprovalPolicyNormalizesLevels(t *testing.T) {
	e := ExecToolsConfig{Permissions: []ExecApprovalRule{
		{Pattern: "ls*", Level: "auto_allow"},
		{Pattern: "rm*", Level: "deny"},
		{Pattern: "git push*", Level: "ask"},
	}}
	p := e.ToApprovalPolicy()
	if p.Rules[0].Level != approval.LevelAllow || p.Rules[1].Level != approval.LevelDeny || p.Rules[2].Level != approval.LevelRequireApproval {
		t.Fatalf("normalized rules = %+v", p.Rules)
	}
	if p.DefaultLevel != approval.LevelRequireApproval {
		t.Errorf("default level = %v", p.DefaultLevel)
	}
}

func TestShouldCompress(t *testing.T) {
	c := CompressionConfig{Enabled: true, MaxConversationTurns: 10}
	if c.ShouldCompress(10) {
		t.Error("at the threshold should not compress")
	}
	if !c.ShouldCompress(11) {
		t.Error("above the threshold should compress")
	}
	if (CompressionConfig{MaxConversationTurns: 1}).ShouldCompress(100) {
		t.Error("disabled compression should never trigger")
	}
}
