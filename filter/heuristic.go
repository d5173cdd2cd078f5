package filter

import "strings"

// IsRandomLabel reports whether the first label of name looks machine
// generated. It is a conservative detector for DGA and tracking domains:
// long labels dominated by digits or starved of vowels.
func IsRandomLabel(name string) bool {
	name = strings.TrimPrefix(name, "www.")

	// Long multi-label names are almost always legitimate CDNs; the
	// cloudfront family is the known exception worth inspecting.
	if !strings.Contains(name, "cloudfront") && strings.Count(name, ".") > 1 {
		return false
	}

	label, _, found := strings.Cut(name, ".")
	if !found || len(label) < 10 {
		return false
	}

	var (
		digitRuns  int // count of maximal digit runs
		longestRun int // length of the longest digit run
		run        int
		vowels     int
	)

	for i := 0; i < len(label); i++ {
		if label[i] >= '0' && label[i] <= '9' {
			run++
			continue
		}
		if run > 0 {
			digitRuns++
			if run > longestRun {
				longestRun = run
			}
			run = 0
		}
		if strings.ContainsRune("aeiouAEIOU", rune(label[i])) {
			vowels++
		}
	}
	if run > 0 {
		digitRuns++
		if run > longestRun {
			longestRun = run
		}
	}

	switch {
	case longestRun >= 5:
		return true
	case digitRuns >= 2:
		return true
	case float64(vowels)/float64(len(label)) < 0.30:
		return true
	}
	return false
}
