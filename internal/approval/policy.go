package approval

import (
	"strings"
)

// Level is a classification a command can receive.
type Level string

const (
	LevelAllow           Level = "allow"
	LevelDeny            Level = "deny"
	LevelRequireApproval Level = "require_approval"
)

// Rule is one entry of a permission policy: a shell-style glob over
// "<command> <args_joined_by_space>", anchored at both ends.
type Rule struct {
	Pattern     string `json:"pattern"`
	Level       Level  `json:"level"`
	Description string `json:"description,omitempty"`
}

// Policy evaluates a command+args pair against an ordered rule list,
// first-match-wins, falling back to DefaultLevel.
type Policy struct {
	Rules        []Rule
	DefaultLevel Level
}

// Classify reduces (command, args) to a Level by evaluating Rules in
// declaration order.
func (p Policy) Classify(command string, args []string) Level {
	subject := command
	if len(args) > 0 {
		subject = command + " " + strings.Join(args, " ")
	}
	for _, r := range p.Rules {
		if matchAnchoredGlob(r.Pattern, subject) {
			return r.Level
		}
	}
	if p.DefaultLevel == "" {
		return LevelRequireApproval
	}
	return p.DefaultLevel
}

// matchAnchoredGlob matches a shell-style glob (only '*' and '?' are
// special, '*' may span path separators since command-line subjects
// routinely contain them) against the whole of s; the pattern is
// implicitly anchored at both start and end.
func matchAnchoredGlob(pattern, s string) bool {
	return globMatch([]rune(pattern), []rune(s))
}

// globMatch is a classic recursive '*'/'?' matcher, anchored at both
// ends of both slices.
func globMatch(pattern, s []rune) bool {
	if len(pattern) == 0 {
		return len(s) == 0
	}
	switch pattern[0] {
	case '*':
		// '*' may match zero runes, or consume one and keep trying.
		if globMatch(pattern[1:], s) {
			return true
		}
		for len(s) > 0 {
			s = s[1:]
			if globMatch(pattern[1:], s) {
				return true
			}
		}
		return false
	case '?':
		if len(s) == 0 {
			return false
		}
		return globMatch(pattern[1:], s[1:])
	default:
		if len(s) == 0 || s[0] != pattern[0] {
			return false
		}
		return globMatch(pattern[1:], s[1:])
	}
}
