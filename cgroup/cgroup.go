package cgroup

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	rcgroups "github.com/opencontainers/runc/libcontainer/cgroups"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/cpuset"
)

// Subsystem identifies one cgroup v1 controller of interest.
type Subsystem string

const (
	CPUAcct Subsystem = "cpuacct"
	CPUSet  Subsystem = "cpuset"
	Memory  Subsystem = "memory"
	Freezer Subsystem = "freezer"
)

// All lists the controllers the checker cares about, in comparison order.
var All = []Subsystem{CPUAcct, CPUSet, Memory, Freezer}

// Required reports whether the controller must be mounted for resource
// limiting to work. Freezer is optional, some distributions do not mount it.
func (s Subsystem) Required() bool { return s != Freezer }

// Entry locates the cgroup of one controller: the hierarchy mount point plus
// the path within the hierarchy, as reported by /proc/<pid>/cgroup.
type Entry struct {
	Mount string // e.g. /sys/fs/cgroup/memory
	Path  string // e.g. /user.slice, never empty; "/" is the hierarchy root
}

// Dir returns the cgroup's directory in the filesystem.
func (e Entry) Dir() string { return filepath.Join(e.Mount, e.Path) }

// Snapshot maps each mounted controller to the cgroup currently governing a
// process. A controller absent from the map is not mounted on this system.
type Snapshot map[Subsystem]Entry

// ErrUnifiedHierarchy is returned when the system runs the cgroup v2 unified
// hierarchy, where per-controller placement cannot be observed.
var ErrUnifiedHierarchy = errors.New("cgroup v2 unified hierarchy in use")

const (
	procSelfCgroup    = "/proc/self/cgroup"
	procSelfMountinfo = "/proc/self/mountinfo"
)

// CurrentSnapshot reads the calling process's own cgroup placement.
func CurrentSnapshot() (Snapshot, error) {
	if rcgroups.IsCgroup2UnifiedMode() {
		return nil, ErrUnifiedHierarchy
	}
	paths, err := rcgroups.ParseCgroupFile(procSelfCgroup)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", procSelfCgroup, err)
	}
	mountinfo, err := os.ReadFile(procSelfMountinfo)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", procSelfMountinfo, err)
	}
	return snapshotFrom(paths, mountinfo), nil
}

func snapshotFrom(paths map[string]string, mountinfo []byte) Snapshot {
	snap := Snapshot{}
	for _, sub := range All {
		rel, ok := paths[string(sub)]
		if !ok || rel == "" {
			continue
		}
		mount, ok := findMountPoint(bytes.NewReader(mountinfo), string(sub))
		if !ok {
			log.Debugf("no mount point for cgroup subsystem %s", sub)
			continue
		}
		snap[sub] = Entry{Mount: mount, Path: rel}
	}
	return snap
}

// findMountPoint scans mountinfo records for the hierarchy that carries the
// given controller as a mount option.
func findMountPoint(r io.Reader, controller string) (string, bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), " ")
		if len(fields) < 5 {
			continue
		}
		for _, opt := range strings.Split(fields[len(fields)-1], ",") {
			if opt == controller {
				return fields[4], true
			}
		}
	}
	return "", false
}

// ReadAttribute returns the trimmed content of the controller's attribute
// file, e.g. ReadAttribute(CPUSet, "cpus") reads cpuset.cpus.
func (s Snapshot) ReadAttribute(sub Subsystem, name string) (string, error) {
	entry, ok := s[sub]
	if !ok {
		return "", fmt.Errorf("cgroup subsystem %s not mounted", sub)
	}
	file := filepath.Join(entry.Dir(), string(sub)+"."+name)
	content, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read cgroup attribute %s: %w", file, err)
	}
	return strings.TrimSpace(string(content)), nil
}

// AllowedCPUs returns the CPU cores the process is allowed to run on.
func (s Snapshot) AllowedCPUs() ([]int, error) {
	return s.readList(CPUSet, "cpus")
}

// AllowedMemoryBanks returns the memory nodes the process may allocate from.
func (s Snapshot) AllowedMemoryBanks() ([]int, error) {
	return s.readList(CPUSet, "mems")
}

func (s Snapshot) readList(sub Subsystem, name string) ([]int, error) {
	value, err := s.ReadAttribute(sub, name)
	if err != nil {
		return nil, err
	}
	set, err := cpuset.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("parse %s.%s value %q: %w", sub, name, value, err)
	}
	return set.List(), nil
}
