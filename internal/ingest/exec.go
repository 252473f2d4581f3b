package ingest

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"depsweep/internal/logging"
)

// CommandSpec describes one bounded subprocess invocation
type CommandSpec struct {
	// Path is the resolved executable
	Path string
	Args []string

	// Env vars layered over the curated base environment
	Env map[string]string

	// Timeout bounds the subprocess; 0 means no deadline beyond ctx
	Timeout time.Duration
}

// CommandResult carries the subprocess outputs. Stdout is the data channel;
// stderr is kept for diagnostics only.
type CommandResult struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
	TimedOut bool
}

// CommandRunner abstracts subprocess execution so adapter tests can stub it
type CommandRunner interface {
	Run(ctx context.Context, spec CommandSpec) (CommandResult, error)
}

// allowListedEnvVars are inherited so package managers can resolve their own
// homes and caches; everything else is dropped so output stays reproducible
var allowListedEnvVars = map[string]struct{}{
	"HOME": {},
	"USER": {},
	"PATH": {},
	"TERM": {},
}

// ExecRunner runs commands with a curated environment and bounded runtime
type ExecRunner struct {
	logger *logging.Logger
}

// NewExecRunner creates a runner. A nil logger falls back to discard.
func NewExecRunner(logger *logging.Logger) *ExecRunner {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &ExecRunner{logger: logger}
}

type readResult struct {
	data []byte
	err  error
}

// Run executes the command. The returned error covers only launch failures
// and parent-context cancellation; exit codes and timeouts are reported in
// the result so callers can decide whether partial output is usable.
func (r *ExecRunner) Run(ctx context.Context, spec CommandSpec) (CommandResult, error) {
	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.Path, spec.Args...)
	cmd.Env = curatedEnv(spec.Env)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return CommandResult{}, err
	}

	r.logger.Debug("Executing command", logging.Fields{
		"path":    spec.Path,
		"args":    strings.Join(spec.Args, " "),
		"timeout": spec.Timeout.String(),
	})

	if err := cmd.Start(); err != nil {
		return CommandResult{}, err
	}

	// Drain stdout while the process runs; a large inventory must never
	// stall on a full pipe buffer.
	outCh := make(chan readResult, 1)
	go func() {
		data, readErr := io.ReadAll(stdout)
		outCh <- readResult{data: data, err: readErr}
	}()

	// All reads must complete before Wait, which closes the pipe
	out := <-outCh
	waitErr := cmd.Wait()

	result := CommandResult{
		Stdout: out.data,
		Stderr: stderrBuf.String(),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, waitErr
	}
	if out.err != nil {
		return result, out.err
	}

	return result, nil
}

// curatedEnv builds the subprocess environment: allow-listed inherited vars,
// a stable locale, then per-command extras
func curatedEnv(extra map[string]string) []string {
	envMap := make(map[string]string)
	for _, entry := range os.Environ() {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if _, allowed := allowListedEnvVars[k]; allowed {
			envMap[k] = v
		}
	}

	// Stable locale so tool output does not vary with user settings
	envMap["LC_ALL"] = "C"

	for k, v := range extra {
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}
