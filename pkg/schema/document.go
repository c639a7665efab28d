package schema

import (
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// GuidelineResult 单条指南检索结果
type GuidelineResult struct {
	// Content 分块原文（不再额外截断）
	Content string `json:"content"`
	// Source 来源文件名，缺失时为 "Unknown"
	Source string `json:"source"`
	// Page 页码文本，缺失时为 "N/A"
	Page string `json:"page"`
	// Specialty 专科标签，缺失时为 "general"
	Specialty string `json:"specialty"`
	// Score 相似度得分，越大越相关
	Score float32 `json:"score"`
}

// PatientContext 构造检索 query 时读取的患者信息
type PatientContext struct {
	// Age 年龄，0 表示未知
	Age int `json:"age,omitempty"`
	// Conditions 活动期疾病/合并症
	Conditions []string `json:"conditions,omitempty"`
	// Specialty 就诊科室，调用方未显式指定专科时作为过滤条件
	Specialty string `json:"specialty,omitempty"`
}

// IsZero 是否没有任何有效字段
func (p *PatientContext) IsZero() bool {
	if p == nil {
		return true
	}
	return p.Age == 0 && len(p.ActiveConditions()) == 0 && strings.TrimSpace(p.Specialty) == ""
}

// ActiveConditions 去掉空白项后的疾病列表
func (p *PatientContext) ActiveConditions() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.Conditions))
	for _, c := range p.Conditions {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Fields 按固定顺序输出已设置的字段，用于展示
func (p *PatientContext) Fields() [][2]string {
	if p.IsZero() {
		return nil
	}
	var fields [][2]string
	if p.Age > 0 {
		fields = append(fields, [2]string{"age", strconv.Itoa(p.Age)})
	}
	if conds := p.ActiveConditions(); len(conds) > 0 {
		fields = append(fields, [2]string{"conditions", strings.Join(conds, ", ")})
	}
	if s := strings.TrimSpace(p.Specialty); s != "" {
		fields = append(fields, [2]string{"specialty", s})
	}
	return fields
}

const (
	StatusEmpty  = "empty"
	StatusActive = "active"
)

// Statistics 指南库统计信息
type Statistics struct {
	Status         string         `json:"status"`
	TotalDocuments int            `json:"total_documents"`
	Specialties    []string       `json:"specialties"`
	BySpecialty    map[string]int `json:"by_specialty"`
	IndexedChunks  int            `json:"indexed_chunks"`
}

// MarshalJSON 未就绪时只输出 status；就绪时各字段总是输出，列表与映射不为 null
func (s Statistics) MarshalJSON() ([]byte, error) {
	if s.Status != StatusActive {
		return sonic.Marshal(struct {
			Status string `json:"status"`
		}{Status: s.Status})
	}
	type active Statistics
	out := active(s)
	if out.Specialties == nil {
		out.Specialties = []string{}
	}
	if out.BySpecialty == nil {
		out.BySpecialty = map[string]int{}
	}
	return sonic.Marshal(out)
}
