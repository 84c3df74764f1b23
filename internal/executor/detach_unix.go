//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// detach puts the script in its own session so it survives this process
// and never receives our terminal signals.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
