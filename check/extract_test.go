package check

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cgcheck/cgroup"
)

func TestFilterLines(t *testing.T) {
	echoed := "sh -c 'sleep 1; cat /proc/self/cgroup'"
	lines := []string{
		"",
		echoed,
		"--------------------------------------------------------------------------------",
		"4:memory:/a/benchmark_1",
		"   ",
		"---",
		"3:cpuset:/b/benchmark_1",
	}
	assert.Equal(t,
		[]string{"4:memory:/a/benchmark_1", "3:cpuset:/b/benchmark_1"},
		FilterLines(lines, echoed))
}

func TestFilterLinesKeepsNonMatchingCommand(t *testing.T) {
	// Only the literal echoed command is dropped.
	lines := []string{"sh -c 'sleep 2; cat /proc/self/cgroup'"}
	assert.Equal(t, lines, FilterLines(lines, "sh -c 'sleep 1; cat /proc/self/cgroup'"))
}

func TestExtractPlacement(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  Placement
	}{
		{
			"simple records",
			[]string{"5:memory:/m/benchmark_1", "4:freezer:/f/benchmark_1"},
			Placement{cgroup.Memory: "/m/benchmark_1", cgroup.Freezer: "/f/benchmark_1"},
		},
		{
			"comma-joined controllers",
			[]string{"3:cpu,cpuacct:/a/benchmark_1"},
			Placement{cgroup.CPUAcct: "/a/benchmark_1"},
		},
		{
			"foreign controllers ignored",
			[]string{"7:pids:/p", "1:name=systemd:/init.scope", "2:cpuset:/c"},
			Placement{cgroup.CPUSet: "/c"},
		},
		{
			"malformed lines ignored",
			[]string{"not a record", "memory:/missing-id", "4:memory:/m"},
			Placement{cgroup.Memory: "/m"},
		},
		{
			"first record wins",
			[]string{"4:memory:/first", "4:memory:/second"},
			Placement{cgroup.Memory: "/first"},
		},
		{
			"no records",
			[]string{"0::/init.scope"},
			Placement{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPlacement(tt.lines))
		})
	}
}

func TestExtractPlacementPathWithColons(t *testing.T) {
	// Only the first two colons delimit fields; the path keeps the rest.
	got := ExtractPlacement([]string{"4:memory:/odd:path"})
	assert.Equal(t, Placement{cgroup.Memory: "/odd:path"}, got)
}
