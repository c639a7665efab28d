package common

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// FileExtension 返回小写的文件扩展名（含点）
func FileExtension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// IsGuidelineFile 只有 .pdf 与 .txt 会被收录（不区分大小写）
func IsGuidelineFile(path string) bool {
	switch FileExtension(path) {
	case ExtPDF, ExtTXT:
		return true
	default:
		return false
	}
}

// TruncateRunes 按字符截断，避免切断多字节字符
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// CloneMetadata 浅拷贝元数据，nil 返回空 map
func CloneMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src)+4)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
