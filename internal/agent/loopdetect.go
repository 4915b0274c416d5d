package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"
)

// Loop detection levels returned by toolLoopState.detect.
const (
	loopLevelNone     = ""
	loopLevelWarning  = "warning"
	loopLevelCritical = "critical"
)

// warningRepeats is the number of consecutive identical (tool, args,
// result) calls that trigger a warning; criticalRepeats aborts the turn.
const (
	warningRepeats  = 3
	criticalRepeats = 5
)

// hashArgs produces a stable fingerprint of a tool call's arguments.
// encoding/json sorts map keys, so two semantically identical argument
// maps always hash the same regardless of call-site ordering.
func hashArgs(args map[string]interface{}) string {
	buf, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

type loopEntry struct {
	tool     string
	argsHash string
	result   string
}

// toolLoopState detects a sub-agent or provider stuck calling the same
// tool with the same arguments and getting the same result, with no
// progress being made. Its entries are guarded by mu, since the agent
// loop calls record and recordResult from tool calls running in parallel.
type toolLoopState struct {
	mu      sync.Mutex
	entries []loopEntry
}

// record appends a new call with its argument hash and returns the hash
// so the caller can correlate the later recordResult/detect calls.
func (s *toolLoopState) record(tool string, args map[string]interface{}) string {
	hash := hashArgs(args)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, loopEntry{tool: tool, argsHash: hash})
	return hash
}

// recordResult attaches the observed tool result to the most recent
// matching entry for (tool call identified by) argsHash.
func (s *toolLoopState) recordResult(argsHash, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].argsHash == argsHash && s.entries[i].result == "" {
			s.entries[i].result = result
			return
		}
	}
}

// detect counts the trailing run of entries matching (tool, argsHash)
// with an identical result and classifies it as a warning or critical
// loop once the run crosses warningRepeats/criticalRepeats.
func (s *toolLoopState) detect(tool, argsHash string) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := 0
	var lastResult string
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.tool != tool || e.argsHash != argsHash {
			break
		}
		if run > 0 && e.result != lastResult {
			break
		}
		lastResult = e.result
		run++
	}

	switch {
	case run >= criticalRepeats:
		return loopLevelCritical, "tool called " + strconv.Itoa(run) + " times in a row with no change in result"
	case run >= warningRepeats:
		return loopLevelWarning, "tool called " + strconv.Itoa(run) + " times in a row with no change in result"
	default:
		return loopLevelNone, ""
	}
}
