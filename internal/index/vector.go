package index

import (
	"math"
	"sort"

	"github.com/kestrelsearch/kestrel/pkg/types"
)

// Match is a search hit: a chunk ID with its raw score, best-first.
type Match struct {
	ID    string
	Score float64
}

// VectorIndex performs exact nearest-neighbor search over dense embeddings
// using cosine similarity. Vectors are L2-normalized at build time so
// search reduces to an inner product. Read-only after build.
type VectorIndex struct {
	dim     int
	ids     []string
	vectors [][]float32
}

// BuildVector constructs a VectorIndex from chunks carrying precomputed
// embeddings. All embeddings must share one dimensionality; the build fails
// with ErrDimensionMismatch otherwise.
func BuildVector(chunks []types.Chunk) (*VectorIndex, error) {
	idx := &VectorIndex{}

	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return nil, types.DimensionMismatchError(idx.dim, 0)
		}
		if idx.dim == 0 {
			idx.dim = len(chunk.Embedding)
		}
		if len(chunk.Embedding) != idx.dim {
			return nil, types.DimensionMismatchError(idx.dim, len(chunk.Embedding))
		}

		idx.ids = append(idx.ids, chunk.ID)
		idx.vectors = append(idx.vectors, normalize(chunk.Embedding))
	}

	return idx, nil
}

// Search returns the top-k chunks by cosine similarity, best-first.
// A k larger than the corpus returns all chunks. A query with the wrong
// dimensionality fails with ErrDimensionMismatch.
func (x *VectorIndex) Search(query []float32, k int) ([]Match, error) {
	if len(x.ids) == 0 || k <= 0 {
		return []Match{}, nil
	}
	if len(query) != x.dim {
		return nil, types.DimensionMismatchError(x.dim, len(query))
	}

	normalized := normalize(query)

	matches := make([]Match, len(x.ids))
	for i, vector := range x.vectors {
		matches[i] = Match{ID: x.ids[i], Score: dotProduct(normalized, vector)}
	}

	sortMatches(matches)

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Dimension returns the embedding dimensionality, 0 for an empty index.
func (x *VectorIndex) Dimension() int {
	return x.dim
}

// Len returns the number of indexed chunks.
func (x *VectorIndex) Len() int {
	return len(x.ids)
}

// sortMatches orders by score descending, then by ID for determinism.
func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}

// normalize returns the L2-normalized copy of a vector. A zero vector is
// returned unchanged.
func normalize(vector []float32) []float32 {
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		out := make([]float32, len(vector))
		copy(out, vector)
		return out
	}

	scale := float32(1 / math.Sqrt(norm))
	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = v * scale
	}
	return out
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
