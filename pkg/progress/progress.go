// Package progress derives best-effort progress and phase signals from
// unstructured paru output. The results feed the UI only; success and failure
// are always decided by process exit status, never by what this package sees.
package progress

import (
	"strconv"
	"strings"
)

// ParseProgress extracts a completion fraction in [0,1] from one output line.
// Two heuristics, tried in order: a percentage ("downloading... 45%") and a
// parenthesized counter ("(2/5) checking keys"). The second value is false
// when the line carries no recognizable progress; callers keep their previous
// value in that case.
func ParseProgress(line string) (float64, bool) {
	if idx := strings.IndexByte(line, '%'); idx > 0 {
		start := idx
		for start > 0 {
			c := line[start-1]
			if (c < '0' || c > '9') && c != '.' {
				break
			}
			start--
		}
		if start < idx {
			if pct, err := strconv.ParseFloat(line[start:idx], 64); err == nil {
				return clamp01(pct / 100), true
			}
		}
	}

	if open := strings.IndexByte(line, '('); open >= 0 {
		rest := line[open+1:]
		if closing := strings.IndexByte(rest, ')'); closing > 0 {
			nums := rest[:closing]
			if slash := strings.IndexByte(nums, '/'); slash > 0 {
				current, errCur := strconv.ParseFloat(nums[:slash], 64)
				total, errTot := strconv.ParseFloat(nums[slash+1:], 64)
				if errCur == nil && errTot == nil && total > 0 {
					return clamp01(current / total), true
				}
			}
		}
	}

	return 0, false
}

// clamp01 bounds a fraction to [0,1]. Counters like "(7/5)" show up when a
// hook reruns a step, and they must not push the bar past full.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// phaseTable maps known output phrases to their stage labels. First match
// wins, so more specific phrases come before generic ones.
var phaseTable = []struct {
	phrases []string
	label   string
}{
	{[]string{"resolving dependencies"}, "Resolving dependencies"},
	{[]string{"checking keys"}, "Checking keys"},
	{[]string{"checking package integrity"}, "Verifying package integrity"},
	{[]string{"loading package files"}, "Loading package files"},
	{[]string{"checking for file conflicts"}, "Checking file conflicts"},
	{[]string{"downloading", "retrieving"}, "Downloading"},
	{[]string{"building", "makepkg"}, "Building"},
	{[]string{"installing", "upgrading"}, "Installing"},
	{[]string{"removing"}, "Removing"},
}

// ParsePhase maps one output line to a human-readable stage label via
// case-insensitive substring match. The second value is false when no known
// phrase occurs; callers keep their previous phase in that case.
func ParsePhase(line string) (string, bool) {
	lower := strings.ToLower(line)
	for _, entry := range phaseTable {
		for _, phrase := range entry.phrases {
			if strings.Contains(lower, phrase) {
				return entry.label, true
			}
		}
	}
	return "", false
}
