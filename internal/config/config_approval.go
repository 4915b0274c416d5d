package config

import "github.com/nextlevelbuilder/goclaw-kernel/internal/approval"

// normalizeApprovalLevel maps the config-file spellings onto the
// approval engine's canonical levels. Both the short forms
// ("auto_allow", "ask") and the canonical names are accepted.
func normalizeApprovalLevel(s string) approval.Level {
	switch s {
	case "auto_allow", "allow":
		return approval.LevelAllow
	case "deny":
		return approval.LevelDeny
	default:
		return approval.LevelRequireApproval
	}
}

// ToApprovalPolicy converts the exec tool's permission rules into an
// approval.Policy, preserving declaration order so first-match-wins
// behaves identically to how the rules read in the config file.
func (e ExecToolsConfig) ToApprovalPolicy() approval.Policy {
	rules := make([]approval.Rule, 0, len(e.Permissions))
	for _, r := range e.Permissions {
		rules = append(rules, approval.Rule{
			Pattern:     r.Pattern,
			Level:       normalizeApprovalLevel(r.Level),
			Description: r.Description,
		})
	}
	return approval.Policy{Rules: rules, DefaultLevel: approval.LevelRequireApproval}
}
