package sandbox

import "bytes"

// Check is one named pass/fail isolation check.
type Check struct {
	Name    string
	Passed  bool
	Details string
}

// Verification is the outcome of a pairwise isolation check.
type Verification struct {
	Isolated  bool
	Checks    []Check
	Score     float64
	Violations []string
}

// Verifier checks that two sandboxes are properly isolated from each
// other.
type Verifier struct{}

// NewVerifier constructs a Verifier.
func NewVerifier() *Verifier { return &Verifier{} }

func isAppSandboxType(impl string) bool {
	return impl == ImplAppContainer || impl == ImplLandlockNono || impl == ImplSeatbeltNono
}

func isToolSandboxType(impl string) bool {
	return impl == ImplGVisorDocker || impl == ImplPlainDocker || impl == ImplWSL2GVisor
}

// VerifyIsolation runs the six fixed checks (distinct ids, distinct
// types, filesystem/network/process/IPC namespace separation) and
// computes a score as passed/total. A pair is isolated iff score >= 0.8
// and no explicit violation was recorded.
func (v *Verifier) VerifyIsolation(a, b Info) Verification {
	var checks []Check
	var violations []string

	idCheck := Check{Name: "different_ids", Passed: a.SandboxID != b.SandboxID}
	if !idCheck.Passed {
		violations = append(violations, "sandboxes have the same id: "+a.SandboxID)
	}
	checks = append(checks, idCheck)

	typeOK := (isAppSandboxType(a.Impl) && isToolSandboxType(b.Impl)) || (isToolSandboxType(a.Impl) && isAppSandboxType(b.Impl))
	typeCheck := Check{Name: "different_types", Passed: typeOK}
	if !typeOK {
		violations = append(violations, "sandboxes should be of different types for dual-layer isolation")
	}
	checks = append(checks, typeCheck)

	// Namespace-separation checks: this implementation has no live
	// kernel/container handle to interrogate from here (that lives in
	// the concrete Sandbox backend), so; matching the reference
	// implementation's own behavior for these four checks; they assume
	// isolation holds once the sandboxes are confirmed to be of
	// different types and report accordingly.
	for _, name := range []string{"filesystem_isolation", "network_isolation", "process_isolation", "ipc_isolation"} {
		checks = append(checks, Check{Name: name, Passed: true, Details: "verified through namespace separation"})
	}

	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	score := 0.0
	if len(checks) > 0 {
		score = float64(passed) / float64(len(checks))
	}

	return Verification{
		Isolated:   len(violations) == 0 && score >= 0.8,
		Checks:     checks,
		Score:      score,
		Violations: violations,
	}
}

// MaxTransferSize is the Cross-Sandbox Payload Filter's size cap (10 MiB),
//
const MaxTransferSize = 10 * 1024 * 1024

// executablePatterns are byte sequences identifying an executable
// payload: ELF, PE, Mach-O magic numbers, and a shebang.
var executablePatterns = [][]byte{
	{0x7F, 0x45, 0x4C, 0x46}, // ELF
	{0x4D, 0x5A},             // PE
	{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O
	{0xFE, 0xED, 0xFA, 0xCF},
	{0xCE, 0xFA, 0xED, 0xFE},
	{0xCF, 0xFA, 0xED, 0xFE},
	[]byte("#!/"),
}

// maliciousPatterns are fixed byte sequences indicating shellcode or
// injection attempts.
var maliciousPatterns = [][]byte{
	{0x90, 0x90, 0x90, 0x90}, // NOP sled
	[]byte("'; DROP TABLE"),
	[]byte("' OR '1'='1"),
	[]byte("; rm -rf"),
	[]byte("| rm -rf"),
	[]byte("&& rm -rf"),
}

// PayloadFilter is the Cross-Sandbox Payload Filter: all tool output
// crossing from a tool sandbox to the agent must pass through it.
type PayloadFilter struct{}

// NewPayloadFilter constructs a PayloadFilter.
func NewPayloadFilter() *PayloadFilter { return &PayloadFilter{} }

func containsAny(data []byte, patterns [][]byte) bool {
	for _, p := range patterns {
		if len(p) > 0 && len(data) >= len(p) && bytes.Contains(data, p) {
			return true
		}
	}
	return false
}

// IsSafe reports whether data contains neither an executable signature
// nor a known malicious pattern.
func (f *PayloadFilter) IsSafe(data []byte) bool {
	return !containsAny(data, executablePatterns) && !containsAny(data, maliciousPatterns)
}

// Filter rejects data outright if it exceeds MaxTransferSize or fails
// IsSafe; it never silently strips content. On success it returns data
// unchanged.
func (f *PayloadFilter) Filter(data []byte) ([]byte, *Error) {
	if len(data) > MaxTransferSize {
		return nil, New(ErrSecurityViolation, "payload size %d exceeds maximum allowed %d", len(data), MaxTransferSize)
	}
	if containsAny(data, executablePatterns) {
		return nil, New(ErrSecurityViolation, "executable code detected in payload")
	}
	if containsAny(data, maliciousPatterns) {
		return nil, New(ErrSecurityViolation, "malicious pattern detected in payload")
	}
	return data, nil
}

// FilterResult runs stdout and stderr of an ExecutionResult through
// Filter, checking their combined size against MaxTransferSize first.
func (f *PayloadFilter) FilterResult(r ExecutionResult) (ExecutionResult, *Error) {
	total := len(r.Stdout) + len(r.Stderr)
	if total > MaxTransferSize {
		return ExecutionResult{}, New(ErrSecurityViolation, "result size %d exceeds maximum allowed %d", total, MaxTransferSize)
	}
	stdout, err := f.Filter(r.Stdout)
	if err != nil {
		return ExecutionResult{}, err
	}
	stderr, err := f.Filter(r.Stderr)
	if err != nil {
		return ExecutionResult{}, err
	}
	r.Stdout, r.Stderr = stdout, stderr
	return r, nil
}
