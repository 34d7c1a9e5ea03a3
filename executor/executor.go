// Package executor runs a command as a direct child inside freshly created
// benchmark cgroups, applying memory and cpuset limits and capturing the
// child's stdout into a file.
package executor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"cgcheck/cgroup"
)

const separatorWidth = 80

// Executor creates one fresh benchmark sub-cgroup per mounted controller
// beneath the caller's own cgroups for every run.
type Executor struct {
	parents cgroup.Snapshot
}

func New(parents cgroup.Snapshot) *Executor {
	return &Executor{parents: parents}
}

// Run executes args synchronously under the given limits and returns the
// child's exit code. The output file receives the echoed command, a separator
// line, then the child's stdout. The benchmark cgroups are removed on every
// return path.
func (e *Executor) Run(args []string, outputFile string, memLimitBytes int64, cpus, memNodes []int) (int, error) {
	if len(args) == 0 {
		return -1, fmt.Errorf("empty command")
	}

	bench, err := createBenchmarkCgroups(e.parents)
	if err != nil {
		return -1, err
	}
	defer bench.remove()

	if err := bench.setLimits(memLimitBytes, cpus, memNodes); err != nil {
		return -1, err
	}

	out, err := os.Create(outputFile)
	if err != nil {
		return -1, fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()
	fmt.Fprintln(out, FormatCommand(args))
	fmt.Fprintln(out, strings.Repeat("-", separatorWidth))

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	// Own process group, so a failed attach can kill the child and anything
	// it already forked.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start %s: %w", args[0], err)
	}
	log.Debugf("probe started with pid %d", cmd.Process.Pid)

	if err := bench.attach(cmd.Process.Pid); err != nil {
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		_ = cmd.Wait()
		return -1, err
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("wait for %s: %w", args[0], err)
	}
	return 0, nil
}

// FormatCommand renders args the way the output-file header echoes them,
// single-quoting any argument a shell would not pass through as one word.
// Consumers filtering the header out of captured output rely on this exact
// form.
func FormatCommand(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "" || needsQuoting(arg) {
			arg = "'" + arg + "'"
		}
		quoted = append(quoted, arg)
	}
	return strings.Join(quoted, " ")
}

func needsQuoting(arg string) bool {
	return strings.ContainsAny(arg, " \t;&|<>")
}
