// Package specialty 根据文件路径推断指南所属专科。
//
// 专科只作为检索时的软过滤条件，不是硬分区：推断不出时一律归为 general。
package specialty

import (
	"strings"
)

// General 未匹配任何专科时的默认值
const General = "general"

// 封闭的专科集合，顺序即 All 的返回顺序
var known = []string{
	"cardiology",
	"neurology",
	"surgery",
	"pediatrics",
	"oncology",
	"emergency",
	General,
	"infectious",
	"pulmonary",
	"respiratory",
	"icu",
	"critical",
}

var knownSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(known))
	for _, s := range known {
		m[s] = struct{}{}
	}
	return m
}()

// All 返回全部专科标签
func All() []string {
	out := make([]string, len(known))
	copy(out, known)
	return out
}

// Infer 从左到右扫描路径的每一段，返回第一个命中的专科（不区分大小写）
func Infer(path string) string {
	segments := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	for _, seg := range segments {
		if s, ok := Normalize(seg); ok {
			return s
		}
	}
	return General
}

// Normalize 去空白并转小写，同时返回是否属于封闭集合
func Normalize(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	_, ok := knownSet[s]
	return s, ok
}

// IsKnown 判断是否为已知专科
func IsKnown(s string) bool {
	_, ok := Normalize(s)
	return ok
}
