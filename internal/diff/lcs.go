package diff

// MatchResult reports the longest common subsequence between two signature
// sequences. Pairs holds (existing index, desired index) matches in order;
// both index columns are strictly increasing. Unmatched indices on either
// side are delete/insert candidates.
type MatchResult struct {
	Pairs        [][2]int
	UnmatchedOld []int
	UnmatchedNew []int
}

// Match computes LCS-based matched pairs over full signature equality.
// Standard O(n·m) dynamic programming; the backtrack prefers the existing
// side on ties, yielding the earliest-starting match set.
func Match(old, new []Signature) MatchResult {
	m := len(old)
	n := len(new)

	var pairs [][2]int
	if m > 0 && n > 0 {
		dp := make([][]int, m+1)
		for i := range dp {
			dp[i] = make([]int, n+1)
		}
		for i := 1; i <= m; i++ {
			for j := 1; j <= n; j++ {
				if old[i-1] == new[j-1] {
					dp[i][j] = dp[i-1][j-1] + 1
				} else if dp[i-1][j] >= dp[i][j-1] {
					dp[i][j] = dp[i-1][j]
				} else {
					dp[i][j] = dp[i][j-1]
				}
			}
		}

		i, j := m, n
		for i > 0 && j > 0 {
			switch {
			case old[i-1] == new[j-1]:
				pairs = append(pairs, [2]int{i - 1, j - 1})
				i--
				j--
			case dp[i-1][j] >= dp[i][j-1]:
				i--
			default:
				j--
			}
		}
		for left, right := 0, len(pairs)-1; left < right; left, right = left+1, right-1 {
			pairs[left], pairs[right] = pairs[right], pairs[left]
		}
	}

	matchedOld := make(map[int]bool, len(pairs))
	matchedNew := make(map[int]bool, len(pairs))
	for _, pair := range pairs {
		matchedOld[pair[0]] = true
		matchedNew[pair[1]] = true
	}
	result := MatchResult{Pairs: pairs}
	for i := 0; i < m; i++ {
		if !matchedOld[i] {
			result.UnmatchedOld = append(result.UnmatchedOld, i)
		}
	}
	for j := 0; j < n; j++ {
		if !matchedNew[j] {
			result.UnmatchedNew = append(result.UnmatchedNew, j)
		}
	}
	return result
}
