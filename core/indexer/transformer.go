package indexer

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/Malowking/guidekb/core/common"
	"github.com/Malowking/guidekb/core/errors"
	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// 分隔符优先级：段落 > 行 > 句子 > 单词，都不满足时按字符硬切
var defaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", " "}

// NewChunker 创建分块器
func NewChunker(ctx context.Context, chunkSize, overlapSize int) (document.Transformer, error) {
	if chunkSize <= 0 {
		return nil, errors.Newf(errors.ErrInvalidParameter, "chunk size must be positive, got %d", chunkSize)
	}
	if overlapSize < 0 || overlapSize >= chunkSize {
		return nil, errors.Newf(errors.ErrInvalidParameter,
			"chunk overlap must be in [0, %d), got %d", chunkSize, overlapSize)
	}

	recTrans, err := recursive.NewSplitter(ctx, &recursive.Config{
		ChunkSize:   chunkSize,
		OverlapSize: overlapSize,
		Separators:  defaultSeparators,
		LenFunc:     utf8.RuneCountInString,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternalError, err, "failed to create recursive splitter")
	}
	return &chunker{
		recursive:   recTrans,
		chunkSize:   chunkSize,
		overlapSize: overlapSize,
	}, nil
}

type chunker struct {
	recursive   document.Transformer
	chunkSize   int
	overlapSize int
}

// Transform 逐文档切分，每个分块拷贝父文档的全部元数据
func (c *chunker) Transform(ctx context.Context, docs []*schema.Document, opts ...document.TransformerOption) ([]*schema.Document, error) {
	var chunks []*schema.Document
	for _, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.Content) == "" {
			continue
		}
		pieces, err := c.recursive.Transform(ctx, []*schema.Document{doc}, opts...)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrIndexingFailed, err, "failed to split document %s", doc.ID)
		}

		index := 0
		for _, piece := range pieces {
			for _, text := range c.hardCut(piece.Content) {
				text = strings.TrimSpace(text)
				if text == "" {
					continue
				}
				meta := common.CloneMetadata(doc.MetaData)
				meta[common.MetaChunkIndex] = index
				chunks = append(chunks, &schema.Document{
					ID:       uuid.NewString(),
					Content:  text,
					MetaData: meta,
				})
				index++
			}
		}
	}
	return chunks, nil
}

// hardCut 超长片段按字符窗口切开，窗口之间保留 overlapSize 个字符
func (c *chunker) hardCut(text string) []string {
	if utf8.RuneCountInString(text) <= c.chunkSize {
		return []string{text}
	}
	runes := []rune(text)
	step := c.chunkSize - c.overlapSize

	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
