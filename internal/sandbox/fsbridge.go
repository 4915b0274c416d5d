package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// DirEntry is one entry returned by FsBridge.ListDir.
type DirEntry struct {
	Name string
	Kind string // "file" or "dir"
	Size int64
}

// FsBridge lets filesystem tools operate against a path inside a running
// container sandbox instead of the host filesystem, using `docker exec`
// the same way dockerSandbox.Exec drives every other in-container
// command. containerPath is the directory inside the container that the
// tool's path arguments are resolved against (conventionally /workspace).
type FsBridge struct {
	containerName string
	containerPath string
}

// NewFsBridge constructs a bridge against the container named sandboxID
// (dockerSandbox.containerName's output) rooted at containerPath.
func NewFsBridge(sandboxID, containerPath string) *FsBridge {
	return &FsBridge{containerName: "goclaw-sandbox-" + sandboxID, containerPath: containerPath}
}

func (b *FsBridge) resolve(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return b.containerPath + "/" + strings.TrimPrefix(path, "./")
}

// ReadFile returns the contents of path inside the container.
func (b *FsBridge) ReadFile(ctx context.Context, path string) (string, error) {
	out, stderr, err := b.exec(ctx, "cat", b.resolve(path))
	if err != nil {
		return "", fmt.Errorf("sandbox read_file: %w: %s", err, stderr)
	}
	return out, nil
}

// WriteFile writes content to path inside the container, creating parent
// directories as needed. Content is piped over stdin rather than
// interpolated into a shell command so it can contain arbitrary bytes
// without risking command injection.
func (b *FsBridge) WriteFile(ctx context.Context, path, content string) error {
	target := b.resolve(path)
	mkdirCmd := exec.CommandContext(ctx, "docker", "exec", b.containerName, "mkdir", "-p", parentDir(target))
	if out, err := mkdirCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sandbox write_file: mkdir: %w: %s", err, out)
	}

	cmd := exec.CommandContext(ctx, "docker", "exec", "-i", b.containerName, "tee", target)
	cmd.Stdin = strings.NewReader(content)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sandbox write_file: %w: %s", err, stderr.String())
	}
	return nil
}

// ListDir lists the entries of path inside the container using `find
// -maxdepth 1` with a stable, parseable field format.
func (b *FsBridge) ListDir(ctx context.Context, path string) ([]DirEntry, error) {
	target := b.resolve(path)
	out, stderr, err := b.exec(ctx, "find", target, "-mindepth", "1", "-maxdepth", "1", "-printf", "%f\t%y\t%s\n")
	if err != nil {
		return nil, fmt.Errorf("sandbox list_dir: %w: %s", err, stderr)
	}
	var entries []DirEntry
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			continue
		}
		kind := "file"
		if fields[1] == "d" {
			kind = "dir"
		}
		size, _ := strconv.ParseInt(fields[2], 10, 64)
		entries = append(entries, DirEntry{Name: fields[0], Kind: kind, Size: size})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (b *FsBridge) exec(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	full := append([]string{"exec", b.containerName}, args...)
	cmd := exec.CommandContext(ctx, "docker", full...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return out.String(), errBuf.String(), err
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}
