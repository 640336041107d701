package toolrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func script(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	exe := script(t, dir, "faketool", "exit 0")
	t.Setenv("PATH", dir)

	if p, err := Resolve("faketool", ""); err != nil || p != exe {
		t.Fatalf("lookup: %q %v", p, err)
	}
	if p, err := Resolve("faketool", exe); err != nil || p != exe {
		t.Fatalf("override path: %q %v", p, err)
	}
	if _, err := Resolve("nosuchtool", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := Resolve("x", filepath.Join(dir, "missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound for missing override, got %v", err)
	}

	plain := filepath.Join(dir, "plain")
	if err := os.WriteFile(plain, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Resolve("x", plain); err == nil {
		t.Fatal("expected non-executable error")
	}
}

func TestRunSuccessAndFailure(t *testing.T) {
	dir := t.TempDir()
	ok := script(t, dir, "ok", `echo out; echo err >&2; touch "$1"`)
	bad := script(t, dir, "bad", `echo "index already exists" >&2; exit 3`)

	r := &Runner{}
	target := filepath.Join(dir, "made")
	if _, err := r.Run(context.Background(), Cmd{Tool: "ok", Path: ok, Args: []string{target}}); err != nil {
		t.Fatalf("run ok: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("side effect missing: %v", err)
	}

	_, err := r.Run(context.Background(), Cmd{Tool: "bad", Path: bad, Args: []string{"-x"}})
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("want *ToolError, got %T %v", err, err)
	}
	if te.ExitCode != 3 || !strings.Contains(te.Stderr, "already exists") {
		t.Fatalf("tool error %+v", te)
	}
	if !strings.Contains(te.Error(), "exit status 3") {
		t.Fatalf("message %q", te.Error())
	}
}

func TestRunDryRunDoesNotExecute(t *testing.T) {
	dir := t.TempDir()
	exe := script(t, dir, "touchit", `touch "$1"`)
	target := filepath.Join(dir, "never")
	res, err := (&Runner{DryRun: true}).Run(context.Background(), Cmd{Tool: "t", Path: exe, Args: []string{target}})
	if err != nil || !res.DryRun {
		t.Fatalf("dry run: %+v %v", res, err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("dry run executed the command")
	}
}

func TestRunCanceled(t *testing.T) {
	dir := t.TempDir()
	slow := script(t, dir, "slow", "exec sleep 5")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := (&Runner{}).Run(ctx, Cmd{Tool: "slow", Path: slow})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}

func TestTailBufferKeepsEnd(t *testing.T) {
	tb := &tailBuffer{max: 8}
	tb.WriteLine("0123456789")
	tb.WriteLine("ab")
	if got := tb.String(); got != "6789\nab\n" {
		t.Fatalf("tail %q", got)
	}
}

func TestCmdString(t *testing.T) {
	c := Cmd{Path: "/bin/genmap", Args: []string{"map", "-O", "out dir", "it's"}}
	want := `/bin/genmap map -O 'out dir' 'it'\''s'`
	if got := c.String(); got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}
