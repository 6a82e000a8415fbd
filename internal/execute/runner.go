// Package execute shells out to local language interpreters to run a
// snippet of code. It is a thin, non-architectural wrapper: no sandboxing
// beyond a timeout, an output cap, and a throwaway temp directory.
package execute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultMaxOutput = 1 << 20
)

var (
	// ErrNoCode indicates an empty code submission.
	ErrNoCode = errors.New("execute: no code provided")
	// ErrUnsupportedLanguage indicates a language with no configured interpreter.
	ErrUnsupportedLanguage = errors.New("execute: unsupported language")
	// ErrTimeout indicates the interpreter exceeded the execution deadline.
	ErrTimeout = errors.New("execute: execution timed out")

	noOpLogger = zap.NewNop()
)

type interpreter struct {
	fileName string
	command  string
	args     []string
}

var interpreters = map[string]interpreter{
	"javascript": {fileName: "main.js", command: "node"},
	"python":     {fileName: "main.py", command: "python3"},
	"typescript": {fileName: "main.ts", command: "ts-node"},
}

// RunnerConfig configures the code runner.
type RunnerConfig struct {
	Timeout   time.Duration
	MaxOutput int
	Logger    *zap.Logger
}

// Runner executes code snippets with local interpreters.
type Runner struct {
	timeout   time.Duration
	maxOutput int
	logger    *zap.Logger
}

// NewRunner constructs a Runner with sane defaults.
func NewRunner(cfg RunnerConfig) *Runner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxOutput := cfg.MaxOutput
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Runner{timeout: timeout, maxOutput: maxOutput, logger: logger}
}

// Result carries the combined interpreter output and exit code.
type Result struct {
	Output   string
	ExitCode int
}

// Run writes the code to a temp file and executes it with the interpreter
// for the language tag. The temp directory is always removed.
func (r *Runner) Run(ctx context.Context, language, code string) (Result, error) {
	if code == "" {
		return Result{}, ErrNoCode
	}
	interp, ok := interpreters[language]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	if _, err := exec.LookPath(interp.command); err != nil {
		return Result{}, fmt.Errorf("%w: %s interpreter %q not found", ErrUnsupportedLanguage, language, interp.command)
	}

	tempDir, err := os.MkdirTemp("", "collab-exec-")
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			r.logger.Warn("temp dir cleanup failed", zap.String("dir", tempDir), zap.Error(err))
		}
	}()

	scriptPath := filepath.Join(tempDir, interp.fileName)
	if err := os.WriteFile(scriptPath, []byte(code), 0o600); err != nil {
		return Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := append(append([]string(nil), interp.args...), scriptPath)
	cmd := exec.CommandContext(runCtx, interp.command, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return Result{}, ErrTimeout
	}

	output := combined.String()
	if len(output) > r.maxOutput {
		output = output[:r.maxOutput]
	}
	if output == "" {
		output = "Execution completed with no output"
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, runErr
		}
	}

	return Result{Output: output, ExitCode: exitCode}, nil
}
