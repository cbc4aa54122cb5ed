package fmindex

import "sort"

// suffixArray builds the suffix array of text by prefix doubling.  The text
// is a rank sequence over a small alphabet; sentinels may repeat, ties are
// broken by the following symbols as usual.
func suffixArray(text []byte) []int32 {
	n := len(text)
	sa := make([]int32, n)
	rank := make([]int, n)
	next := make([]int, n)
	for i := 0; i < n; i++ {
		sa[i] = int32(i)
		rank[i] = int(text[i])
	}
	for k := 1; ; k *= 2 {
		less := func(a, b int32) bool {
			if rank[a] != rank[b] {
				return rank[a] < rank[b]
			}
			ra, rb := -1, -1
			if int(a)+k < n {
				ra = rank[int(a)+k]
			}
			if int(b)+k < n {
				rb = rank[int(b)+k]
			}
			return ra < rb
		}
		sort.Slice(sa, func(i, j int) bool { return less(sa[i], sa[j]) })

		next[sa[0]] = 0
		for i := 1; i < n; i++ {
			next[sa[i]] = next[sa[i-1]]
			if less(sa[i-1], sa[i]) {
				next[sa[i]]++
			}
		}
		copy(rank, next)
		if rank[sa[n-1]] == n-1 {
			break
		}
	}
	return sa
}

// bwtFromSA computes the Burrows-Wheeler transform of text given its suffix
// array.  Position 0 wraps to the final symbol.
func bwtFromSA(text []byte, sa []int32) []byte {
	bwt := make([]byte, len(sa))
	for i, p := range sa {
		if p == 0 {
			bwt[i] = text[len(text)-1]
		} else {
			bwt[i] = text[p-1]
		}
	}
	return bwt
}

func reversed(text []byte) []byte {
	out := make([]byte, len(text))
	for i, c := range text {
		out[len(text)-1-i] = c
	}
	return out
}
