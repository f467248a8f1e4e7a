//go:build !unix

package tactile

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
