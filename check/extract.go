package check

import (
	"strings"

	"cgcheck/cgroup"
)

// Placement maps a controller to the cgroup path the probe process was
// actually placed in, as reported by its /proc/self/cgroup output.
type Placement map[cgroup.Subsystem]string

// FilterLines strips the noise the captured output file carries around the
// probe's cgroup records: blank lines, the echoed command header, and
// separator lines made up entirely of dashes.
func FilterLines(lines []string, echoedCommand string) []string {
	var kept []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line == echoedCommand || isSeparator(line) {
			continue
		}
		kept = append(kept, line)
	}
	return kept
}

func isSeparator(line string) bool {
	for _, c := range line {
		if c != '-' {
			return false
		}
	}
	return len(line) > 0
}

// ExtractPlacement parses /proc/<pid>/cgroup records of the form
// "id:controllers:path", where controllers may be a comma-joined list.
// Records for controllers the checker does not know are ignored; a known
// controller with no record is simply absent from the result.
func ExtractPlacement(lines []string) Placement {
	placement := Placement{}
	for _, line := range lines {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 || parts[2] == "" {
			continue
		}
		for _, name := range strings.Split(parts[1], ",") {
			for _, sub := range cgroup.All {
				if name != string(sub) {
					continue
				}
				if _, seen := placement[sub]; !seen {
					placement[sub] = parts[2]
				}
			}
		}
	}
	return placement
}
