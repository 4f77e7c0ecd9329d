package understand

// LevenshteinDistance computes the Levenshtein edit distance between two
// strings: the minimum number of single-rune insertions, deletions, or
// substitutions that turn one into the other.
func LevenshteinDistance(a, b string) int {
	return boundedDistance([]rune(a), []rune(b), -1)
}

// boundedDistance returns the edit distance between a and b, or limit+1 as
// soon as it is certain the distance exceeds limit. A negative limit
// disables the bound.
func boundedDistance(a, b []rune, limit int) int {
	if len(a) == 0 {
		return capDistance(len(b), limit)
	}
	if len(b) == 0 {
		return capDistance(len(a), limit)
	}
	if limit >= 0 {
		diff := len(a) - len(b)
		if diff < 0 {
			diff = -diff
		}
		if diff > limit {
			return limit + 1
		}
	}

	// Two rows are enough.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
			rowMin = min(rowMin, curr[j])
		}
		if limit >= 0 && rowMin > limit {
			return limit + 1
		}
		prev, curr = curr, prev
	}
	return capDistance(prev[len(b)], limit)
}

func capDistance(d, limit int) int {
	if limit >= 0 && d > limit {
		return limit + 1
	}
	return d
}
