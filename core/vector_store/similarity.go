package vector_store

import (
	"math"
	"sort"
)

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine 余弦相似度，任一向量为零向量时返回 0
func cosine(a []float32, normA float64, b []float32, normB float64) float32 {
	if normA == 0 || normB == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (normA * normB))
}

// rankResults 按分数降序排列并截取前 topK 个，同分保持原有顺序
func rankResults(results []SearchResult, topK int) []SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
