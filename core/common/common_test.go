package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	t.Run("空白与空行", func(t *testing.T) {
		in := "  Aspirin\t\t 300 mg  \r\n\r\n\r\n\r\nRepeat   ECG \n"
		assert.Equal(t, "Aspirin 300 mg\n\nRepeat ECG", CleanText(in))
	})

	t.Run("零宽字符与非标准空格", func(t *testing.T) {
		in := "chest\u200b\u00a0pain\u3000protocol\ufeff"
		assert.Equal(t, "chest pain protocol", CleanText(in))
	})

	t.Run("PDF断词合并", func(t *testing.T) {
		assert.Equal(t, "administer treatment", CleanText("administer treat-\nment"))
		// 大写开头的下一行不是断词
		assert.Equal(t, "COVID-\nTesting", CleanText("COVID-\nTesting"))
	})

	t.Run("控制字符", func(t *testing.T) {
		assert.Equal(t, "ab", CleanText("a\x00\x07b"))
	})

	t.Run("非法UTF-8", func(t *testing.T) {
		assert.Equal(t, "ok", CleanText("o\xffk"))
	})
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", TruncateRunes("abcdef", 3))
	assert.Equal(t, "abc", TruncateRunes("abc", 10))
	assert.Equal(t, "心脏", TruncateRunes("心脏病学", 2))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}

func TestIsGuidelineFile(t *testing.T) {
	assert.True(t, IsGuidelineFile("cardiology/ACS.PDF"))
	assert.True(t, IsGuidelineFile("notes.txt"))
	assert.True(t, IsGuidelineFile("notes.Txt"))
	assert.False(t, IsGuidelineFile("notes.md"))
	assert.False(t, IsGuidelineFile("README"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, `cardio\"logy`, SanitizeMilvusString(`cardio"logy`))
	assert.Equal(t, `a\\b`, SanitizeMilvusString(`a\b`))
	assert.Equal(t, "clinical_guidelines_v2", SanitizeTableName("clinical-guidelines.v2"))
	assert.True(t, ValidateCollectionName("clinical_guidelines"))
	assert.False(t, ValidateCollectionName("1guidelines"))
	assert.False(t, ValidateCollectionName(""))
}

func TestCloneMetadata(t *testing.T) {
	src := map[string]any{MetaSpecialty: "cardiology"}
	dst := CloneMetadata(src)
	dst[MetaPage] = 1

	assert.NotContains(t, src, MetaPage)
	assert.Equal(t, "cardiology", dst[MetaSpecialty])
	assert.NotNil(t, CloneMetadata(nil))
}

func TestRecoverToError(t *testing.T) {
	work := func() (err error) {
		defer RecoverToError(context.Background(), "parse", &err)
		panic("bad xref table")
	}
	err := work()
	assert.EqualError(t, err, "panic in task parse: bad xref table")

	ok := func() (err error) {
		defer RecoverToError(context.Background(), "parse", &err)
		return nil
	}
	assert.NoError(t, ok())
}
