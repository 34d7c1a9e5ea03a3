// Package check verifies that cgroup-based resource isolation actually
// applies to child processes. It spawns a short-lived probe under resource
// limits, waits, and compares the cgroups the kernel placed the probe in
// against the expected benchmark sub-cgroups. Daemons such as cgrulesengd can
// silently relocate freshly spawned processes, which would leave CPU, memory
// and cpuset limits unenforced without any visible error.
package check

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/cpuset"

	"cgcheck/cgroup"
	"cgcheck/executor"
)

// probeMemLimit is deliberately tiny. The probe allocates nothing; the limit
// exists to make the executor engage the swap-accounting machinery.
const probeMemLimit = 1 << 20

// SnapshotProvider serves cgroup information about the calling process.
// *cgroup.Provider is the production implementation.
type SnapshotProvider interface {
	CurrentSnapshot() (cgroup.Snapshot, error)
	ReadAttribute(sub cgroup.Subsystem, name string) (string, error)
	AllowedMemoryBanks() ([]int, error)
}

// ProbeExecutor runs a command under resource limits, writing its stdout to
// outputFile. *executor.Executor is the production implementation.
type ProbeExecutor interface {
	Run(args []string, outputFile string, memLimitBytes int64, cpus, memNodes []int) (int, error)
}

// Config carries the knobs of one check invocation.
type Config struct {
	// Wait is how many seconds the probe sleeps before reporting its cgroup
	// membership, giving interfering daemons a window to act.
	Wait int
	// RequireFreezer treats an unverifiable or misplaced freezer cgroup as
	// fatal instead of tolerating it.
	RequireFreezer bool
}

type Kind int

const (
	// OutcomePassed: every verifiable controller placed the probe in the
	// expected benchmark sub-cgroup.
	OutcomePassed Kind = iota
	// OutcomeUnusable: required controllers are not mounted, no probe was run.
	OutcomeUnusable
	// OutcomeDeviated: the probe was found outside its benchmark cgroup for
	// at least one controller.
	OutcomeDeviated
)

// Deviation records one controller whose observed placement does not descend
// from the expected benchmark sub-cgroup. Actual is empty when the probe
// output carried no record for the controller at all.
type Deviation struct {
	Subsystem cgroup.Subsystem
	Expected  string // required path prefix
	Actual    string
}

// Outcome is the result of one check invocation. Failure kinds are data, not
// errors; only genuine execution faults travel as error values.
type Outcome struct {
	Kind       Kind
	Missing    []cgroup.Subsystem // set when Kind is OutcomeUnusable
	Deviations []Deviation        // set when Kind is OutcomeDeviated
}

func (o Outcome) OK() bool { return o.Kind == OutcomePassed }

// Checker orchestrates one availability check.
type Checker struct {
	provider SnapshotProvider
	executor ProbeExecutor
	config   Config
}

func New(provider SnapshotProvider, exec ProbeExecutor, config Config) *Checker {
	return &Checker{provider: provider, executor: exec, config: config}
}

// Run performs the check synchronously on the calling goroutine.
func (c *Checker) Run() (Outcome, error) {
	snap, err := c.provider.CurrentSnapshot()
	if err != nil {
		return Outcome{}, err
	}

	var missing []cgroup.Subsystem
	for _, sub := range cgroup.All {
		if !c.required(sub) {
			continue
		}
		if _, ok := snap[sub]; !ok {
			missing = append(missing, sub)
		}
	}
	if len(missing) > 0 {
		log.Errorf("cgroups unusable: required subsystems %v are not mounted", missing)
		return Outcome{Kind: OutcomeUnusable, Missing: missing}, nil
	}

	// Pin the probe to our own allowed cpus and memory nodes, forcing the
	// executor to exercise the cpuset controller.
	cpusValue, err := c.provider.ReadAttribute(cgroup.CPUSet, "cpus")
	if err != nil {
		return Outcome{}, err
	}
	cores, err := cpuset.Parse(cpusValue)
	if err != nil {
		return Outcome{}, fmt.Errorf("parse cpuset.cpus value %q: %w", cpusValue, err)
	}
	banks, err := c.provider.AllowedMemoryBanks()
	if err != nil {
		return Outcome{}, err
	}

	scratch, err := os.CreateTemp("", "cgcheck-*.out")
	if err != nil {
		return Outcome{}, fmt.Errorf("create scratch file: %w", err)
	}
	scratchPath := scratch.Name()
	scratch.Close()
	defer os.Remove(scratchPath)

	args := probeCommand(c.config.Wait)
	if _, err := c.executor.Run(args, scratchPath, probeMemLimit, cores.List(), banks); err != nil {
		return Outcome{}, fmt.Errorf("run probe: %w", err)
	}

	lines, err := readLines(scratchPath)
	if err != nil {
		return Outcome{}, err
	}
	placement := ExtractPlacement(FilterLines(lines, executor.FormatCommand(args)))
	if len(placement) == 0 {
		// Degraded but reportable: comparison below records the gaps.
		log.Warnf("probe output contained no cgroup records, placement cannot be determined")
	}

	return c.compare(snap, placement), nil
}

func (c *Checker) compare(snap cgroup.Snapshot, placement Placement) Outcome {
	var deviations []Deviation
	for _, sub := range cgroup.All {
		entry, ok := snap[sub]
		if !ok {
			if sub == cgroup.Freezer {
				log.Infof("freezer subsystem not mounted, skipping")
			}
			continue
		}
		expected := filepath.Join(entry.Path, "benchmark_")
		actual, found := placement[sub]
		if found && strings.HasPrefix(actual, expected) {
			continue
		}
		if !found && sub == cgroup.Freezer && !c.config.RequireFreezer {
			log.Infof("freezer placement not reported by probe, tolerated")
			continue
		}
		log.Warnf("probe was in cgroup %q for subsystem %s, not the expected sub-cgroup of %q; maybe another program is interfering with cgroup management?",
			actual, sub, entry.Path)
		deviations = append(deviations, Deviation{Subsystem: sub, Expected: expected, Actual: actual})
	}
	if len(deviations) > 0 {
		return Outcome{Kind: OutcomeDeviated, Deviations: deviations}
	}
	return Outcome{Kind: OutcomePassed}
}

func (c *Checker) required(sub cgroup.Subsystem) bool {
	return sub.Required() || (sub == cgroup.Freezer && c.config.RequireFreezer)
}

// probeCommand sleeps to give interfering daemons time to act, then prints
// the probe's own cgroup membership.
func probeCommand(wait int) []string {
	return []string{"sh", "-c", fmt.Sprintf("sleep %d; cat /proc/self/cgroup", wait)}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open probe output: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read probe output: %w", err)
	}
	return lines, nil
}
