//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup 子进程放入新进程组，取消时整组SIGKILL，避免遗留孙进程
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
