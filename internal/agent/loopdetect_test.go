package agent

import "testing"

func record(s *toolLoopState, tool, result string, args map[string]interface{}) string {
	hash := s.record(tool, args)
	s.recordResult(hash, result)
	return hash
}

func TestLoopDetectorNoRunBelowThreshold(t *testing.T) {
	var s toolLoopState
	args := map[string]interface{}{"q": "x"}
	var hash string
	for i := 0; i < warningRepeats-1; i++ {
		hash = record(&s, "search", "same", args)
	}
	if level, _ := s.detect("search", hash); level != loopLevelNone {
		t.Errorf("level below threshold = %q, want none", level)
	}
}

func TestLoopDetectorWarningThenCritical(t *testing.T) {
	var s toolLoopState
	args := map[string]interface{}{"q": "x"}
	var hash string
	for i := 0; i < warningRepeats; i++ {
		hash = record(&s, "search", "same", args)
	}
	if level, _ := s.detect("search", hash); level != loopLevelWarning {
		t.Errorf("level at %d repeats = %q, want warning", warningRepeats, level)
	}
	for i := warningRepeats; i < criticalRepeats; i++ {
		hash = record(&s, "search", "same", args)
	}
	if level, note := s.detect("search", hash); level != loopLevelCritical {
		t.Errorf("level at %d repeats = %q (%s), want critical", criticalRepeats, level, note)
	}
}

func TestLoopDetectorResetOnChangedResult(t *testing.T) {
	var s toolLoopState
	args := map[string]interface{}{"q": "x"}
	var hash string
	for i := 0; i < criticalRepeats-1; i++ {
		hash = record(&s, "search", "same", args)
	}
	hash = record(&s, "search", "different now", args)
	if level, _ := s.detect("search", hash); level == loopLevelCritical {
		t.Error("changed result should break the run")
	}
}

func TestLoopDetectorDistinctArgsAreDistinctRuns(t *testing.T) {
	var s toolLoopState
	for i := 0; i < criticalRepeats; i++ {
		record(&s, "search", "same", map[string]interface{}{"q": "a"})
		record(&s, "search", "same", map[string]interface{}{"q": "b"})
	}
	hash := hashArgs(map[string]interface{}{"q": "a"})
	if level, _ := s.detect("search", hash); level == loopLevelCritical {
		t.Error("interleaved distinct arguments should not form a run")
	}
}

func TestHashArgsStable(t *testing.T) {
	a := hashArgs(map[string]interface{}{"x": 1.0, "y": "z"})
	b := hashArgs(map[string]interface{}{"y": "z", "x": 1.0})
	if a == "" || a != b {
		t.Errorf("hashArgs not key-order independent: %q vs %q", a, b)
	}
}
