// Package capture persists screen state as timestamped PNG files. Two
// backends exist: a CDP capturer that screenshots through an attached
// browser, and an OS-command capturer for the desktop.
package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// New selects the capture backend: CDP when a debugging endpoint is
// configured, the OS screenshot command otherwise.
func New(cfg config.CaptureConfig, logger *zap.Logger) (schemas.ScreenCapturer, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture dir %q: %w", cfg.Dir, err)
	}
	if cfg.CDPURL != "" {
		return &CDPCapturer{cfg: cfg, logger: logger.Named("capture.cdp")}, nil
	}
	return &CommandCapturer{cfg: cfg, logger: logger.Named("capture.os")}, nil
}

// capturePath builds the timestamped destination file name.
func capturePath(dir, prefix string) string {
	now := time.Now()
	name := fmt.Sprintf("%s_%s_%06d.png", prefix, now.Format("20060102_150405"), now.Nanosecond()/1000)
	return filepath.Join(dir, name)
}

// CDPCapturer screenshots the page of a browser reachable over the Chrome
// DevTools Protocol.
type CDPCapturer struct {
	cfg    config.CaptureConfig
	logger *zap.Logger
}

// Capture takes a full screenshot of the attached browser's active page and
// writes it under the capture dir.
func (c *CDPCapturer) Capture(ctx context.Context, prefix string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, c.cfg.CDPURL)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()
	runCtx, cancelRun := context.WithTimeout(taskCtx, c.cfg.Timeout)
	defer cancelRun()

	var buf []byte
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithCaptureBeyondViewport(true).
			Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("CDP screenshot failed: %w", err)
	}

	path := capturePath(c.cfg.Dir, prefix)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("failed to write capture %q: %w", path, err)
	}

	c.logger.Debug("Screenshot captured via CDP", zap.String("path", path))
	return path, nil
}

// ScreenSize queries the attached browser for the physical screen size,
// falling back to the configured dimensions on error.
func (c *CDPCapturer) ScreenSize(ctx context.Context) (schemas.ScreenSize, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, c.cfg.CDPURL)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()
	runCtx, cancelRun := context.WithTimeout(taskCtx, c.cfg.Timeout)
	defer cancelRun()

	var dims []int
	err := chromedp.Run(runCtx,
		chromedp.Evaluate(`[window.screen.width, window.screen.height]`, &dims),
	)
	if err != nil || len(dims) != 2 {
		c.logger.Warn("Falling back to configured screen size", zap.Error(err))
		return schemas.ScreenSize{Width: c.cfg.ScreenWidth, Height: c.cfg.ScreenHeight}, nil
	}
	return schemas.ScreenSize{Width: dims[0], Height: dims[1]}, nil
}

// CommandCapturer shells out to the platform screenshot utility.
type CommandCapturer struct {
	cfg    config.CaptureConfig
	logger *zap.Logger
}

// Capture invokes the OS screenshot command and returns the written path.
func (c *CommandCapturer) Capture(ctx context.Context, prefix string) (string, error) {
	path := capturePath(c.cfg.Dir, prefix)

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(runCtx, "screencapture", "-x", path)
	case "windows":
		// PowerShell ships no one-line capture; rely on the bundled helper.
		cmd = exec.CommandContext(runCtx, "powershell", "-NoProfile", "-Command",
			fmt.Sprintf(`Add-Type -AssemblyName System.Windows.Forms,System.Drawing; $b=[System.Windows.Forms.SystemInformation]::VirtualScreen; $bmp=New-Object System.Drawing.Bitmap $b.Width,$b.Height; $g=[System.Drawing.Graphics]::FromImage($bmp); $g.CopyFromScreen($b.Left,$b.Top,0,0,$bmp.Size); $bmp.Save(%q)`, path))
	default:
		cmd = exec.CommandContext(runCtx, "scrot", "--overwrite", path)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("screen capture command failed: %w (output: %s)", err, out)
	}

	c.logger.Debug("Screenshot captured", zap.String("path", path))
	return path, nil
}

// ScreenSize returns the configured dimensions; the OS backend has no
// portable query.
func (c *CommandCapturer) ScreenSize(context.Context) (schemas.ScreenSize, error) {
	return schemas.ScreenSize{Width: c.cfg.ScreenWidth, Height: c.cfg.ScreenHeight}, nil
}
