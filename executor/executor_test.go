package executor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cgcheck/cgroup"
)

// tempSnapshot backs each controller's cgroup with a plain temp directory so
// the benchmark cgroup plumbing can be exercised without a cgroup mount.
func tempSnapshot(t *testing.T, subs ...cgroup.Subsystem) cgroup.Snapshot {
	t.Helper()
	snap := cgroup.Snapshot{}
	for _, sub := range subs {
		snap[sub] = cgroup.Entry{Mount: t.TempDir(), Path: "/"}
	}
	return snap
}

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"plain", []string{"cat", "/proc/self/cgroup"}, "cat /proc/self/cgroup"},
		{"shell probe", []string{"sh", "-c", "sleep 1; cat /proc/self/cgroup"},
			"sh -c 'sleep 1; cat /proc/self/cgroup'"},
		{"empty arg", []string{"echo", ""}, "echo ''"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCommand(tt.args))
		})
	}
}

func TestCreateBenchmarkCgroups(t *testing.T) {
	snap := tempSnapshot(t, cgroup.CPUAcct, cgroup.Memory)

	bench, err := createBenchmarkCgroups(snap)
	require.NoError(t, err)
	defer bench.remove()

	require.Len(t, bench.dirs, 2)
	assert.True(t, strings.HasPrefix(bench.name, "benchmark_"))
	for sub, dir := range bench.dirs {
		assert.Equal(t, bench.name, filepath.Base(dir), "leaf name differs for %s", sub)
		assert.DirExists(t, dir)
	}
}

func TestCreateBenchmarkCgroupsNoControllers(t *testing.T) {
	_, err := createBenchmarkCgroups(cgroup.Snapshot{})
	assert.Error(t, err)
}

func TestSetLimitsAndAttach(t *testing.T) {
	snap := tempSnapshot(t, cgroup.CPUSet, cgroup.Memory)
	bench, err := createBenchmarkCgroups(snap)
	require.NoError(t, err)
	defer bench.remove()

	require.NoError(t, bench.setLimits(1<<20, []int{0, 1, 3}, []int{0}))

	readFile := func(sub cgroup.Subsystem, name string) string {
		content, err := os.ReadFile(filepath.Join(bench.dirs[sub], name))
		require.NoError(t, err)
		return string(content)
	}
	assert.Equal(t, "1048576", readFile(cgroup.Memory, "memory.limit_in_bytes"))
	assert.Equal(t, "0-1,3", readFile(cgroup.CPUSet, "cpuset.cpus"))
	assert.Equal(t, "0", readFile(cgroup.CPUSet, "cpuset.mems"))

	require.NoError(t, bench.attach(1234))
	assert.Equal(t, "1234", readFile(cgroup.Memory, "tasks"))
	assert.Equal(t, "1234", readFile(cgroup.CPUSet, "tasks"))
}

func TestRunCapturesOutput(t *testing.T) {
	snap := tempSnapshot(t, cgroup.CPUAcct)
	outFile := filepath.Join(t.TempDir(), "probe.out")

	code, err := New(snap).Run([]string{"sh", "-c", "echo hello"}, outFile, 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	content, err := os.ReadFile(outFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "sh -c 'echo hello'", lines[0])
	assert.Equal(t, strings.Repeat("-", separatorWidth), lines[1])
	assert.Equal(t, "hello", lines[2])
}

func TestRunReportsExitCode(t *testing.T) {
	snap := tempSnapshot(t, cgroup.CPUAcct)
	outFile := filepath.Join(t.TempDir(), "probe.out")

	code, err := New(snap).Run([]string{"sh", "-c", "exit 3"}, outFile, 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestRunEmptyCommand(t *testing.T) {
	_, err := New(tempSnapshot(t, cgroup.CPUAcct)).Run(nil, "out", 0, nil, nil)
	assert.Error(t, err)
}
