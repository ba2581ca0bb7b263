package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/scottopell/phoenix-ide/internal/tools"
)

func TestResolverRejectsEscape(t *testing.T) {
	r := Resolver{Root: t.TempDir()}
	if _, err := r.Resolve("../../etc/passwd"); err == nil {
		t.Fatal("expected escape to be rejected")
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Workspace: dir}
	rc := tools.RunContext{Context: context.Background()}

	w := NewWriteTool(cfg)
	in, _ := json.Marshal(map[string]any{"path": "hello.txt", "content": "hi there"})
	out, err := w.Run(rc, in)
	if err != nil || out.IsError {
		t.Fatalf("write failed: err=%v out=%+v", err, out)
	}

	r := NewReadTool(cfg)
	in, _ = json.Marshal(map[string]any{"path": "hello.txt"})
	out, err = r.Run(rc, in)
	if err != nil || out.IsError {
		t.Fatalf("read failed: err=%v out=%+v", err, out)
	}

	if got := string(mustReadFile(t, filepath.Join(dir, "hello.txt"))); got != "hi there" {
		t.Errorf("file content = %q, want %q", got, "hi there")
	}
}

func TestEditReplacesText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("foo bar foo"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEditTool(Config{Workspace: dir})
	in, _ := json.Marshal(map[string]any{
		"path": "f.txt",
		"edits": []map[string]any{
			{"old_text": "foo", "new_text": "baz", "replace_all": true},
		},
	})
	out, err := e.Run(tools.RunContext{Context: context.Background()}, in)
	if err != nil || out.IsError {
		t.Fatalf("edit failed: err=%v out=%+v", err, out)
	}

	if got := string(mustReadFile(t, path)); got != "baz bar baz" {
		t.Errorf("file content = %q, want %q", got, "baz bar baz")
	}
}

func mustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
