package embedding

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cloudwego/eino/components/embedding"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// bigram 特征的权重，低于单词本身
const bigramWeight = 0.5

// HashEmbedder 本地特征哈希向量化
//
// 单词与相邻词对经 xxhash 映射到固定维度的带符号桶，词频做 1+ln(tf) 平滑后 L2 归一化。
// 不需要训练语料，也不访问网络，同一输入总是得到相同向量。
type HashEmbedder struct {
	model     string
	dimension int
	stopwords map[string]struct{}
}

// NewHashEmbedder 创建本地向量化模型
func NewHashEmbedder(model string, dimension int) (*HashEmbedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if model == "" {
		model = fmt.Sprintf("hashing-%d", dimension)
	}
	return &HashEmbedder{
		model:     model,
		dimension: dimension,
		stopwords: defaultStopwords(),
	}, nil
}

func (h *HashEmbedder) Model() string  { return h.model }
func (h *HashEmbedder) Dimension() int { return h.dimension }

// EmbedStrings 实现 eino embedding.Embedder
func (h *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float64 {
	vec := make([]float64, h.dimension)
	tokens := h.tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	counts := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		counts[tok]++
		if i > 0 {
			counts[tokens[i-1]+" "+tok]++
		}
	}

	// 固定累加顺序，保证浮点结果逐位一致
	features := make([]string, 0, len(counts))
	for f := range counts {
		features = append(features, f)
	}
	sort.Strings(features)

	for _, f := range features {
		sum := xxhash.Sum64String(f)
		idx := int(sum % uint64(h.dimension))
		weight := 1 + math.Log(float64(counts[f]))
		if strings.IndexByte(f, ' ') >= 0 {
			weight *= bigramWeight
		}
		if sum>>63 == 1 {
			weight = -weight
		}
		vec[idx] += weight
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (h *HashEmbedder) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := h.stopwords[t]; stop {
			continue
		}
		out = append(out, stem(t))
	}
	return out
}

// stem 只做最轻量的复数还原，pains -> pain，不处理 -ss / -us / -is 结尾
func stem(t string) string {
	if len(t) <= 3 || !strings.HasSuffix(t, "s") {
		return t
	}
	for _, suffix := range []string{"ss", "us", "is"} {
		if strings.HasSuffix(t, suffix) {
			return t
		}
	}
	if strings.HasSuffix(t, "ies") && len(t) > 4 {
		return t[:len(t)-3] + "y"
	}
	return t[:len(t)-1]
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on",
		"at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its",
		"this", "that", "these", "those", "from", "into", "about", "than", "so", "such", "can",
		"will", "should", "may", "do", "does", "not", "no", "all", "any", "each", "other",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
