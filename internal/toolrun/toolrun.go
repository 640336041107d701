// Package toolrun resolves and executes the external tools the pipeline
// drives (genmap, samtools, wigToBigWig).
package toolrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logging "github.com/op/go-logging"
	"golang.org/x/sys/unix"
)

// ErrNotFound is returned by Resolve when a tool is not on PATH.
var ErrNotFound = errors.New("tool not found")

// Resolve finds the executable for name. A non-empty override is used as
// given (bare names are still looked up on PATH) and must be executable.
func Resolve(name, override string) (string, error) {
	target := name
	if override != "" {
		target = override
	}
	if !strings.ContainsRune(target, filepath.Separator) {
		p, err := exec.LookPath(target)
		if err != nil {
			return "", fmt.Errorf("%s: %w", target, ErrNotFound)
		}
		return p, nil
	}
	st, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", target, ErrNotFound)
		}
		return "", err
	}
	if st.IsDir() {
		return "", fmt.Errorf("%s: is a directory", target)
	}
	if err := unix.Access(target, unix.X_OK); err != nil {
		return "", fmt.Errorf("%s: not executable: %w", target, err)
	}
	return target, nil
}

// Cmd is one external invocation.
type Cmd struct {
	Tool string // display name, e.g. "genmap"
	Path string // resolved executable
	Args []string
	Dir  string
}

// String renders a copy-pasteable command line.
func (c Cmd) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"$`\\*?[]#&;|<>()") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ToolError reports a failed external command.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
	if e.ExitCode > 0 {
		msg = fmt.Sprintf("%s %s: exit status %d", e.Tool, strings.Join(e.Args, " "), e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\n" + s
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// Result describes a finished (or dry-run) command.
type Result struct {
	Cmd      Cmd
	Duration time.Duration
	DryRun   bool
}

// Runner executes commands, logging their output. The zero value runs
// commands with the process environment and no logging.
type Runner struct {
	DryRun   bool
	Log      *logging.Logger
	Env      []string // extra KEY=VALUE entries
	TailSize int      // bytes of stderr kept for errors [8 KiB]
}

// Run executes c and waits for it. Cancelling ctx kills the process and
// the returned error satisfies errors.Is(err, context.Canceled).
func (r *Runner) Run(ctx context.Context, c Cmd) (Result, error) {
	res := Result{Cmd: c, DryRun: r.DryRun}
	if r.DryRun {
		r.infof("[dry-run] %s", c)
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	r.debugf("exec: %s", c)

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), r.Env...)

	tailSize := r.TailSize
	if tailSize <= 0 {
		tailSize = 8 << 10
	}
	tail := &tailBuffer{max: tailSize}
	outw := &lineLogger{r: r, tool: c.Tool}
	errw := &lineLogger{r: r, tool: c.Tool, tail: tail}
	cmd.Stdout = outw
	cmd.Stderr = errw
	// Grandchildren holding the pipes open must not hang Wait forever.
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	outw.Flush()
	errw.Flush()
	if err == nil {
		r.debugf("%s finished in %s", c.Tool, res.Duration.Round(time.Millisecond))
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	te := &ToolError{Tool: c.Tool, Args: c.Args, ExitCode: -1, Stderr: tail.String(), Err: err}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		te.ExitCode = ee.ExitCode()
	}
	return res, te
}

func (r *Runner) infof(format string, a ...any) {
	if r.Log != nil {
		r.Log.Infof(format, a...)
	}
}

func (r *Runner) debugf(format string, a ...any) {
	if r.Log != nil {
		r.Log.Debugf(format, a...)
	}
}

// lineLogger forwards tool output line by line to the debug log,
// optionally keeping a tail copy. exec drives each one from a single
// goroutine.
type lineLogger struct {
	r       *Runner
	tool    string
	tail    *tailBuffer
	pending []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.pending = append(l.pending, p...)
	for {
		i := bytes.IndexByte(l.pending, '\n')
		if i < 0 {
			break
		}
		l.line(string(l.pending[:i]))
		l.pending = l.pending[i+1:]
	}
	return len(p), nil
}

func (l *lineLogger) Flush() {
	if len(l.pending) > 0 {
		l.line(string(l.pending))
		l.pending = nil
	}
}

func (l *lineLogger) line(s string) {
	s = strings.TrimRight(s, "\r")
	if l.tail != nil {
		l.tail.WriteLine(s)
	}
	l.r.debugf("%s | %s", l.tool, s)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func (t *tailBuffer) WriteLine(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.WriteString(s)
	t.buf.WriteByte('\n')
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
