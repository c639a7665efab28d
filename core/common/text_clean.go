package common

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	// 多个空格/制表符合并为一个空格
	spaceRe = regexp.MustCompile(`[ \t\f\v]+`)
	// 3个及以上换行合并为段落分隔
	newlineRe = regexp.MustCompile(`\n{3,}`)
	// PDF 抽取时常见的断词：行尾连字符 + 换行
	hyphenBreakRe = regexp.MustCompile(`(\p{L})-\n(\p{Ll})`)
	// 行尾空格
	trailingSpaceRe = regexp.MustCompile(` +\n`)
)

// 零宽字符集合
var zeroWidthRunes = map[rune]bool{
	'\u200B': true, // Zero Width Space
	'\u200C': true, // Zero Width Non-Joiner
	'\u200D': true, // Zero Width Joiner
	'\uFEFF': true, // BOM
	'\u2060': true, // Word Joiner
	'\u00AD': true, // Soft Hyphen
}

// 非标准空格，统一转换为普通空格
var nonStandardSpaces = map[rune]bool{
	'\u00A0': true, // Non-breaking space
	'\u2002': true, // En Space
	'\u2003': true, // Em Space
	'\u2009': true, // Thin Space
	'\u202F': true, // Narrow No-Break Space
	'\u3000': true, // Ideographic Space
}

// CleanText 清洗抽取出的指南文本，便于切分与向量化
//  1. 非法 UTF-8 替换为空
//  2. 去除控制字符（保留换行和制表符）与零宽字符
//  3. NFC 归一化，非标准空格转换为普通空格
//  4. 合并断词、多余空白和空行
func CleanText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7F:
		case zeroWidthRunes[r]:
		case nonStandardSpaces[r]:
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	s = norm.NFC.String(b.String())

	s = hyphenBreakRe.ReplaceAllString(s, "$1$2")
	s = spaceRe.ReplaceAllString(s, " ")
	s = trailingSpaceRe.ReplaceAllString(s, "\n")
	s = newlineRe.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}
