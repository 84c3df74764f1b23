// Package executor launches generated automation scripts as detached
// processes. The launch never blocks on script completion: callers
// synchronize with a settle interval and the error-log artifact instead,
// since the script may hold a browser window open long after the attempt
// is judged.
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/config"
)

const (
	scriptName    = "temp_automation_script.py"
	outputLogName = "script_output.log"
	errorLogName  = "script_error.log"
)

// utf8BOM keeps non-ASCII script content intact on Windows interpreters.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ScriptExecutor implements schemas.CodeExecutor.
type ScriptExecutor struct {
	cfg    config.ExecutionConfig
	logger *zap.Logger

	mu     sync.Mutex
	tailer *tail.Tail
}

// New builds the executor and ensures the work directory exists.
func New(cfg config.ExecutionConfig, logger *zap.Logger) (*ScriptExecutor, error) {
	if cfg.Interpreter == "" {
		return nil, fmt.Errorf("execution.interpreter is required")
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir %q: %w", cfg.WorkDir, err)
	}
	return &ScriptExecutor{cfg: cfg, logger: logger.Named("executor")}, nil
}

func (e *ScriptExecutor) scriptPath() string { return filepath.Join(e.cfg.WorkDir, scriptName) }
func (e *ScriptExecutor) outputPath() string { return filepath.Join(e.cfg.WorkDir, outputLogName) }
func (e *ScriptExecutor) errorPath() string { return filepath.Join(e.cfg.WorkDir, errorLogName) }

// Launch writes the code to the temp script and starts it detached, with
// stdout/stderr redirected to the log artifacts. It returns as soon as the
// process has started.
func (e *ScriptExecutor) Launch(ctx context.Context, code string) error {
	script := e.scriptPath()
	content := append(append([]byte{}, utf8BOM...), []byte(code)...)
	if err := os.WriteFile(script, content, 0o644); err != nil {
		return fmt.Errorf("failed to write script %q: %w", script, err)
	}

	stdout, err := os.Create(e.outputPath())
	if err != nil {
		return fmt.Errorf("failed to create output log: %w", err)
	}
	defer stdout.Close()

	stderr, err := os.Create(e.errorPath())
	if err != nil {
		return fmt.Errorf("failed to create error log: %w", err)
	}
	defer stderr.Close()

	cmd := exec.Command(e.cfg.Interpreter, script)
	cmd.Dir = e.cfg.WorkDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8")
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch script: %w", err)
	}

	pid := cmd.Process.Pid
	// The process runs on independently; drop our handle to it.
	if err := cmd.Process.Release(); err != nil {
		e.logger.Warn("Failed to release process handle", zap.Error(err))
	}

	e.logger.Info("Script launched", zap.Int("pid", pid), zap.String("script", script))

	if e.cfg.StreamLogs {
		e.streamOutput()
	}
	return nil
}

// streamOutput follows the script's stdout artifact and mirrors its lines
// into the application log. Advisory only; never gates progress.
func (e *ScriptExecutor) streamOutput() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tailer != nil {
		_ = e.tailer.Stop()
		e.tailer = nil
	}

	t, err := tail.TailFile(e.outputPath(), tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		e.logger.Warn("Failed to follow script output", zap.Error(err))
		return
	}
	e.tailer = t

	go func() {
		for line := range t.Lines {
			if line.Err != nil {
				continue
			}
			if text := strings.TrimSpace(line.Text); text != "" {
				e.logger.Debug("script output", zap.String("line", text))
			}
		}
	}()
}

// CrashOutput reads the script's error artifact. An empty string means the
// script has reported no error so far.
func (e *ScriptExecutor) CrashOutput() (string, error) {
	data, err := os.ReadFile(e.errorPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read error log: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Artifacts lists every file the executor creates, for session cleanup.
func (e *ScriptExecutor) Artifacts() []string {
	return []string{e.scriptPath(), e.outputPath(), e.errorPath()}
}

// Close stops log streaming. The launched script, if still running, is left
// alone on purpose.
func (e *ScriptExecutor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tailer != nil {
		_ = e.tailer.Stop()
		e.tailer = nil
	}
}
