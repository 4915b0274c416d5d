package approval

import "strings"

// approveWords and rejectWords are the fixed bilingual vocabulary a
// channel reply is matched against. Matching is exact (after trim +
// lowercase); partial matches such as "yes please" are intentionally
// not recognized.
var approveWords = map[string]bool{
	"同意": true, "批准": true, "允许": true, "好": true, "好的": true,
	"ok": true, "yes": true, "y": true, "approve": true, "accept": true, "allow": true,
}

var rejectWords = map[string]bool{
	"拒绝": true, "不同意": true, "不允许": true, "不行": true, "不": true,
	"no": true, "n": true, "reject": true, "deny": true, "decline": true,
}

// ParseResponseText classifies free text as an approval (true), a
// rejection (false), or neither (ok=false). Chinese keywords aren't
// lowercased by strings.ToLower but that's a no-op on non-ASCII runes,
// so the same trim+lowercase path handles both vocabularies.
func ParseResponseText(text string) (approved bool, ok bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false, false
	}
	if approveWords[normalized] {
		return true, true
	}
	if rejectWords[normalized] {
		return false, true
	}
	return false, false
}
