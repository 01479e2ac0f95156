package fusion

import "sort"

// DefaultKConst is the standard literature value for the RRF constant.
// Lower values concentrate weight on top-ranked items from either list;
// higher values flatten influence.
const DefaultKConst = 60

// Combine merges two ranked ID lists with Reciprocal Rank Fusion and
// returns the first topK fused IDs, best-first.
//
// Each list contributes 1/(kConst + rank) per item, with zero-based ranks;
// an ID absent from a list contributes nothing from that list. RRF needs no
// score normalization between the two modalities, which is why it is used
// over a weighted linear combination: cosine similarity and BM25 scores
// live on incomparable scales.
//
// Ties are broken deterministically: the ID that ranked higher in listA
// wins, then the one that ranked higher in listB, then lexicographic order.
func Combine(listA, listB []string, topK int, kConst float64) []string {
	if kConst <= 0 {
		kConst = DefaultKConst
	}
	if topK <= 0 {
		return []string{}
	}

	scores := make(map[string]float64, len(listA)+len(listB))
	rankA := make(map[string]int, len(listA))
	rankB := make(map[string]int, len(listB))

	for rank, id := range listA {
		if _, ok := rankA[id]; ok {
			continue
		}
		rankA[id] = rank
		scores[id] += 1.0 / (kConst + float64(rank))
	}
	for rank, id := range listB {
		if _, ok := rankB[id]; ok {
			continue
		}
		rankB[id] = rank
		scores[id] += 1.0 / (kConst + float64(rank))
	}

	fused := make([]string, 0, len(scores))
	for id := range scores {
		fused = append(fused, id)
	}

	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if scores[a] != scores[b] {
			return scores[a] > scores[b]
		}
		if ra, rb, ok := bothRanks(rankA, a, b); ok {
			return ra < rb
		}
		if ra, rb, ok := bothRanks(rankB, a, b); ok {
			return ra < rb
		}
		return a < b
	})

	if topK < len(fused) {
		fused = fused[:topK]
	}
	return fused
}

// Scores returns the fused RRF score per ID, for callers that need the
// combined contribution values rather than just the ordering.
func Scores(listA, listB []string, kConst float64) map[string]float64 {
	if kConst <= 0 {
		kConst = DefaultKConst
	}

	scores := make(map[string]float64, len(listA)+len(listB))
	seenA := make(map[string]bool, len(listA))
	for rank, id := range listA {
		if seenA[id] {
			continue
		}
		seenA[id] = true
		scores[id] += 1.0 / (kConst + float64(rank))
	}
	seenB := make(map[string]bool, len(listB))
	for rank, id := range listB {
		if seenB[id] {
			continue
		}
		seenB[id] = true
		scores[id] += 1.0 / (kConst + float64(rank))
	}
	return scores
}

// bothRanks reports the ranks of a and b in one list when both are present
// and distinct; ok is false otherwise and the next tie-break rule applies.
func bothRanks(ranks map[string]int, a, b string) (int, int, bool) {
	ra, okA := ranks[a]
	rb, okB := ranks[b]
	if okA && okB && ra != rb {
		return ra, rb, true
	}
	if okA && !okB {
		return 0, 1, true // present beats absent within this rule
	}
	if !okA && okB {
		return 1, 0, true
	}
	return 0, 0, false
}
