// Package vector implements the Vector Retriever (C7): approximate
// nearest-neighbor search over pre-stored embeddings.
//
// It is deliberately store-agnostic — it operates on plain
// id/vector pairs so a production deployment can back it with a real
// ANN index (pgvector, a vector DB, ...) while tests and the reference
// implementation use BruteForce, grounded on the cosine-similarity
// helper in the Alfred gateway's semantic cache
// (caching/caching.go's cosineSimilarity).
package vector

import (
	"math"
	"sort"
)

// Item is one candidate vector with its entity id.
type Item struct {
	ID     string
	Vector []float32
}

// Scored is a retrieval result: an entity id and its similarity to the
// query vector, in [0,1].
type Scored struct {
	ID         string
	Similarity float64
}

// BruteForce computes cosine similarity between query and every item,
// returning the top-k by similarity descending, ties broken by id
// ascending for determinism (spec §7: "Vector Retriever ... Ordering
// is by similarity descending; ties broken by entity-id lexicographic
// ascending").
func BruteForce(query []float32, items []Item, k int) []Scored {
	if k <= 0 {
		return nil
	}

	out := make([]Scored, 0, len(items))
	for _, it := range items {
		out = append(out, Scored{ID: it.ID, Similarity: CosineSimilarity(query, it.Vector)})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID < out[j].ID
	})

	if len(out) > k {
		out = out[:k]
	}
	return out
}

// CosineSimilarity returns (1 - cosine distance), mapped to [0,1] the
// way the reference corpus does it: (dot/(|a||b|) + 1) / 2, so that an
// opposite-pointing pair scores 0 rather than -1. Vectors are
// re-normalized here rather than assumed unit-length, since callers
// should not assume the upstream embedding pipeline left them exactly
// normalized (spec §4.7).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return (cos + 1) / 2
}
