package memory

import "testing"

func TestChunkSourceParagraphSplit(t *testing.T) {
	chunks := chunkSource("A\n\nB\n\nC")
	if len(chunks) != 3 {
		t.Fatalf("chunkSource = %d chunks, want 3: %v", len(chunks), chunks)
	}
	for i, want := range []string{"A", "B", "C"} {
		if chunks[i] != want {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i], want)
		}
	}
}

func TestChunkSourceIgnoresBlankParagraphs(t *testing.T) {
	chunks := chunkSource("A\n\n\n\nB\n\n   \n\nC")
	if len(chunks) != 3 {
		t.Fatalf("chunkSource with extra blank lines = %d chunks, want 3: %v", len(chunks), chunks)
	}
}

func TestChunkSourceSplitsOversizedParagraph(t *testing.T) {
	big := make([]byte, maxChunkBytes+500)
	for i := range big {
		big[i] = 'x'
	}
	chunks := chunkSource(string(big))
	if len(chunks) != 2 {
		t.Fatalf("oversized paragraph = %d chunks, want 2", len(chunks))
	}
	if len(chunks[0]) > maxChunkBytes {
		t.Errorf("first chunk is %d bytes, want <= %d", len(chunks[0]), maxChunkBytes)
	}
}

func TestSplitUTF8SafeRespectsRuneBoundaries(t *testing.T) {
	// Each "漢" is 3 bytes; force a cut that would otherwise land mid-rune.
	s := ""
	for i := 0; i < 10; i++ {
		s += "漢"
	}
	parts := splitUTF8Safe(s, 7) // not a multiple of 3
	for _, p := range parts {
		if !isValidUTF8Boundary(p) {
			t.Errorf("split part %q is not valid UTF-8", p)
		}
	}
}

func isValidUTF8Boundary(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}
