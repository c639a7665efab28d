package indexer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Malowking/guidekb/core/common"
	"github.com/Malowking/guidekb/core/errors"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longGuideline(paragraphs int) string {
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "Section %d. Obtain a 12-lead ECG within ten minutes of arrival. "+
			"Administer aspirin unless contraindicated. Reassess pain and vital signs every fifteen minutes. "+
			"Escalate to the cardiology team when ST elevation is present.\n\n", i+1)
	}
	return b.String()
}

func TestChunkerInheritsMetadata(t *testing.T) {
	ctx := context.Background()
	tr, err := NewChunker(ctx, 200, 40)
	require.NoError(t, err)

	docs := []*schema.Document{
		{
			ID:      "cardiology/acs.txt",
			Content: longGuideline(6),
			MetaData: map[string]any{
				common.MetaSourceFile: "acs.txt",
				common.MetaSpecialty:  "cardiology",
			},
		},
		{
			ID:      "general/vitals.pdf#page=2",
			Content: longGuideline(3),
			MetaData: map[string]any{
				common.MetaSourceFile: "vitals.pdf",
				common.MetaSpecialty:  "general",
				common.MetaPage:       2,
			},
		},
	}

	chunks, err := tr.Transform(ctx, docs)
	require.NoError(t, err)
	require.Greater(t, len(chunks), len(docs))

	seen := map[string]int{}
	for _, chunk := range chunks {
		src := chunk.MetaData[common.MetaSourceFile]
		seen[src.(string)]++
		switch src {
		case "acs.txt":
			assert.Equal(t, "cardiology", chunk.MetaData[common.MetaSpecialty])
			assert.NotContains(t, chunk.MetaData, common.MetaPage)
		case "vitals.pdf":
			assert.Equal(t, "general", chunk.MetaData[common.MetaSpecialty])
			assert.Equal(t, 2, chunk.MetaData[common.MetaPage])
		default:
			t.Fatalf("unexpected source %v", src)
		}
		assert.NotEmpty(t, chunk.ID)
		assert.NotEmpty(t, strings.TrimSpace(chunk.Content))
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Content), 200)
	}
	assert.Greater(t, seen["acs.txt"], 1)
	assert.Greater(t, seen["vitals.pdf"], 1)

	// 父文档元数据不被修改
	assert.NotContains(t, docs[0].MetaData, common.MetaChunkIndex)
}

func TestChunkerOverlapGuard(t *testing.T) {
	ctx := context.Background()

	_, err := NewChunker(ctx, 100, 100)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidParameter))

	_, err = NewChunker(ctx, 100, 150)
	assert.Error(t, err)

	_, err = NewChunker(ctx, 0, 0)
	assert.Error(t, err)

	_, err = NewChunker(ctx, 100, -1)
	assert.Error(t, err)
}

func TestChunkerHardCut(t *testing.T) {
	c := &chunker{chunkSize: 10, overlapSize: 3}

	t.Run("短文本不切", func(t *testing.T) {
		assert.Equal(t, []string{"abc"}, c.hardCut("abc"))
	})

	t.Run("按窗口切分并保留重叠", func(t *testing.T) {
		text := strings.Repeat("x", 5) + strings.Repeat("y", 15)
		parts := c.hardCut(text)
		require.Len(t, parts, 3)
		assert.Equal(t, "xxxxxyyyyy", parts[0])
		assert.Equal(t, "yyyyyyyyyy", parts[1])
		assert.Equal(t, "yyyyyy", parts[2])
		for i := 1; i < len(parts); i++ {
			prev := []rune(parts[i-1])
			assert.True(t, strings.HasPrefix(parts[i], string(prev[len(prev)-3:])))
		}
	})

	t.Run("多字节字符", func(t *testing.T) {
		parts := c.hardCut(strings.Repeat("心", 12))
		require.Len(t, parts, 2)
		assert.Equal(t, 10, utf8.RuneCountInString(parts[0]))
		assert.Equal(t, 5, utf8.RuneCountInString(parts[1]))
	})
}

func TestChunkerSkipsEmptyDocuments(t *testing.T) {
	ctx := context.Background()
	tr, err := NewChunker(ctx, 800, 150)
	require.NoError(t, err)

	chunks, err := tr.Transform(ctx, []*schema.Document{
		nil,
		{Content: "   \n\n  "},
		{Content: "check vital signs routinely", MetaData: map[string]any{common.MetaSpecialty: "general"}},
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "check vital signs routinely", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].MetaData[common.MetaChunkIndex])
}
