package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeWorkspaceFile(t *testing.T, workspace, name, content string) string {
	t.Helper()
	path := filepath.Join(workspace, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadFileInsideWorkspace(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "notes.txt", "workspace content")

	tool := NewReadFileTool(ws, true)
	res := tool.Execute(context.Background(), map[string]interface{}{"path": "notes.txt"})
	if res.IsError {
		t.Fatalf("read inside workspace failed: %s", res.ForLLM)
	}
	if res.ForLLM != "workspace content" {
		t.Errorf("content = %q", res.ForLLM)
	}
}

func TestReadFileRejectsTraversal(t *testing.T) {
	ws := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadFileTool(ws, true)
	rel, err := filepath.Rel(ws, secret)
	if err != nil {
		t.Fatal(err)
	}
	res := tool.Execute(context.Background(), map[string]interface{}{"path": rel})
	if !res.IsError {
		t.Fatalf("traversal via %q read outside the workspace: %q", rel, res.ForLLM)
	}

	res = tool.Execute(context.Background(), map[string]interface{}{"path": secret})
	if !res.IsError {
		t.Fatal("absolute path outside the workspace accepted under restriction")
	}
}

func TestReadFileUnrestrictedAllowsOutside(t *testing.T) {
	ws := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "free.txt")
	if err := os.WriteFile(target, []byte("reachable"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadFileTool(ws, false)
	res := tool.Execute(context.Background(), map[string]interface{}{"path": target})
	if res.IsError {
		t.Fatalf("unrestricted read failed: %s", res.ForLLM)
	}
}

func TestReadFileRejectsSymlinkEscape(t *testing.T) {
	ws := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(ws, "innocent.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	tool := NewReadFileTool(ws, true)
	res := tool.Execute(context.Background(), map[string]interface{}{"path": "innocent.txt"})
	if !res.IsError {
		t.Fatal("symlink pointing outside the workspace followed under restriction")
	}
}

func TestWriteThenEditThenList(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()

	write := NewWriteFileTool(ws, true)
	if res := write.Execute(ctx, map[string]interface{}{"path": "draft.txt", "content": "alpha beta"}); res.IsError {
		t.Fatalf("write: %s", res.ForLLM)
	}

	edit := NewEditFileTool(ws, true)
	if res := edit.Execute(ctx, map[string]interface{}{"path": "draft.txt", "old_string": "beta", "new_string": "gamma"}); res.IsError {
		t.Fatalf("edit: %s", res.ForLLM)
	}
	data, err := os.ReadFile(filepath.Join(ws, "draft.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "alpha gamma" {
		t.Errorf("edited content = %q", data)
	}

	list := NewListDirTool(ws, true)
	res := list.Execute(ctx, map[string]interface{}{"path": "."})
	if res.IsError {
		t.Fatalf("list: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "draft.txt") {
		t.Errorf("list output missing draft.txt: %q", res.ForLLM)
	}
}
