package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	rcgroups "github.com/opencontainers/runc/libcontainer/cgroups"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"k8s.io/utils/cpuset"

	"cgcheck/cgroup"
)

// benchmarkCgroups is the set of per-controller sub-cgroups created for one
// run. The leaf directory name is unique per run, shared across hierarchies,
// and always starts with "benchmark_" so a relocated child can be detected.
type benchmarkCgroups struct {
	name string
	dirs map[cgroup.Subsystem]string
}

func createBenchmarkCgroups(parents cgroup.Snapshot) (*benchmarkCgroups, error) {
	b := &benchmarkCgroups{dirs: map[cgroup.Subsystem]string{}}
	for _, sub := range cgroup.All {
		entry, ok := parents[sub]
		if !ok {
			continue
		}
		parent := entry.Dir()
		if err := unix.Access(parent, unix.W_OK); err != nil {
			b.remove()
			return nil, fmt.Errorf("cgroup %s is not writable: %w", parent, err)
		}
		if b.name == "" {
			// First hierarchy picks the unique leaf name, the rest mirror it.
			dir, err := os.MkdirTemp(parent, "benchmark_")
			if err != nil {
				b.remove()
				return nil, fmt.Errorf("create cgroup under %s: %w", parent, err)
			}
			b.name = filepath.Base(dir)
			b.dirs[sub] = dir
			continue
		}
		dir := filepath.Join(parent, b.name)
		if err := os.Mkdir(dir, 0o755); err != nil {
			b.remove()
			return nil, fmt.Errorf("create cgroup %s: %w", dir, err)
		}
		b.dirs[sub] = dir
	}
	if b.name == "" {
		return nil, fmt.Errorf("no cgroup controllers available")
	}
	log.Debugf("created benchmark cgroups %s for %d controllers", b.name, len(b.dirs))
	return b, nil
}

func (b *benchmarkCgroups) setLimits(memLimitBytes int64, cpus, memNodes []int) error {
	if dir, ok := b.dirs[cgroup.Memory]; ok && memLimitBytes > 0 {
		limit := strconv.FormatInt(memLimitBytes, 10)
		if err := writeValue(dir, "memory.limit_in_bytes", limit); err != nil {
			return err
		}
		// memsw bounds memory+swap together; without it the memory limit can
		// be dodged by swapping.
		if rcgroups.PathExists(filepath.Join(dir, "memory.memsw.limit_in_bytes")) {
			if err := writeValue(dir, "memory.memsw.limit_in_bytes", limit); err != nil {
				return err
			}
		} else {
			log.Warnf("memory.memsw.limit_in_bytes missing, kernel booted without swapaccount=1, swap usage will not be limited")
		}
	}
	if dir, ok := b.dirs[cgroup.CPUSet]; ok {
		// cpus and mems must be populated before a task can join the cpuset.
		if len(cpus) > 0 {
			if err := writeValue(dir, "cpuset.cpus", cpuset.New(cpus...).String()); err != nil {
				return err
			}
		}
		if len(memNodes) > 0 {
			if err := writeValue(dir, "cpuset.mems", cpuset.New(memNodes...).String()); err != nil {
				return err
			}
		}
	}
	return nil
}

// attach adds the pid to every benchmark cgroup.
func (b *benchmarkCgroups) attach(pid int) error {
	for sub, dir := range b.dirs {
		if err := writeValue(dir, "tasks", strconv.Itoa(pid)); err != nil {
			return fmt.Errorf("add pid %d to %s cgroup: %w", pid, sub, err)
		}
	}
	return nil
}

// remove tears down the benchmark cgroups. Callers must have waited for the
// child first; a cgroup with live tasks cannot be removed.
func (b *benchmarkCgroups) remove() {
	for sub, dir := range b.dirs {
		if err := os.RemoveAll(dir); err != nil {
			log.Warnf("remove %s cgroup %s: %v", sub, dir, err)
		}
	}
}

func writeValue(dir, file, value string) error {
	path := filepath.Join(dir, file)
	log.Debugf("writing %q to %s", value, path)
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write cgroup file %s: %w", path, err)
	}
	return nil
}
