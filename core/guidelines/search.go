package guidelines

import (
	"context"
	"fmt"
	"strings"

	"github.com/Malowking/guidekb/core/common"
	"github.com/Malowking/guidekb/core/specialty"
	"github.com/Malowking/guidekb/core/vector_store"
	"github.com/Malowking/guidekb/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/util/gconv"
	"github.com/samber/lo"
)

const (
	protocolTopK = 3

	protocolQuerySuffix = "treatment protocol guideline"
	contextQuerySuffix  = "treatment protocol initial management guidelines"

	institutionalProtocols = "Institutional Protocols"
)

// SearchGuidelines 按专科检索指南，k<=0 时使用配置的默认值
// 索引未就绪或检索出错时返回空列表
func (s *Service) SearchGuidelines(ctx context.Context, query string, k int, specialtyName string) []schema.GuidelineResult {
	idx := s.readyIndex()
	if idx == nil {
		return []schema.GuidelineResult{}
	}
	if k <= 0 {
		k = s.cfg.Guidelines.TopK
	}

	var filter vector_store.Filter
	if name, _ := specialty.Normalize(specialtyName); name != "" {
		filter = vector_store.Filter{common.MetaSpecialty: name}
	}

	hits, err := idx.Search(ctx, query, k, filter)
	if err != nil {
		g.Log().Errorf(ctx, "Guideline search failed for %q: %v", query, err)
		return []schema.GuidelineResult{}
	}

	results := make([]schema.GuidelineResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, toGuidelineResult(hit))
	}
	return results
}

func toGuidelineResult(hit vector_store.SearchResult) schema.GuidelineResult {
	result := schema.GuidelineResult{
		Content:   hit.Text,
		Source:    common.UnknownSource,
		Page:      common.PageNotFound,
		Specialty: specialty.General,
		Score:     hit.Score,
	}
	if v := metaString(hit.Metadata, common.MetaSourceFile); v != "" {
		result.Source = v
	}
	if v := metaString(hit.Metadata, common.MetaPage); v != "" {
		result.Page = v
	}
	if v := metaString(hit.Metadata, common.MetaSpecialty); v != "" {
		result.Specialty = v
	}
	return result
}

// metaString 元数据转文本，JSON 往返后的整数页码 3.0 输出为 "3"
func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(gconv.String(v))
}

// GetProtocolRecommendation 根据病情与患者信息检索治疗方案，返回格式化文本与原始结果
func (s *Service) GetProtocolRecommendation(ctx context.Context, condition string, patient *schema.PatientContext, specialtyName string) (string, []schema.GuidelineResult) {
	s.ensureInitialized(ctx)

	if strings.TrimSpace(specialtyName) == "" && patient != nil {
		specialtyName = patient.Specialty
	}

	results := s.SearchGuidelines(ctx, protocolQuery(condition, patient), protocolTopK, specialtyName)
	if len(results) == 0 {
		return fmt.Sprintf("No guidelines found for '%s'.", condition), []schema.GuidelineResult{}
	}
	return formatProtocol(condition, patient, results, s.cfg.Guidelines.ExcerptLength), results
}

// protocolQuery 高龄追加 elderly，合并症直接拼接为额外检索词
func protocolQuery(condition string, patient *schema.PatientContext) string {
	query := strings.TrimSpace(condition) + " " + protocolQuerySuffix
	if patient == nil {
		return query
	}
	if patient.Age > 65 {
		query += " elderly"
	}
	if conds := patient.ActiveConditions(); len(conds) > 0 {
		query += " " + strings.Join(conds, " ")
	}
	return query
}

func formatProtocol(condition string, patient *schema.PatientContext, results []schema.GuidelineResult, excerptLength int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 **Clinical Guidelines for: %s**\n\n", condition)

	if fields := patient.Fields(); len(fields) > 0 {
		b.WriteString("**Patient Context:**\n")
		for _, f := range fields {
			fmt.Fprintf(&b, "• %s: %s\n", f[0], f[1])
		}
		b.WriteString("\n")
	}

	b.WriteString("**Relevant Guidelines:**\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "**%d. %s** [%s]\n", i+1, r.Source, r.Specialty)
		b.WriteString(strings.TrimSpace(common.TruncateRunes(r.Content, excerptLength)))
		b.WriteString("\n\n---\n\n")
	}
	return b.String()
}

// RetrieveGuidelineContext 为诊断检索指南上下文，供下游医嘱校验使用
// 返回拼接后的上下文文本与去重后的来源列表
func (s *Service) RetrieveGuidelineContext(ctx context.Context, diagnosis, department string) (string, []string) {
	s.ensureInitialized(ctx)

	query := strings.TrimSpace(diagnosis) + " " + contextQuerySuffix
	results := s.SearchGuidelines(ctx, query, s.cfg.Guidelines.ContextTopK, strings.ToLower(department))
	if len(results) == 0 {
		text := fmt.Sprintf("No specific guidelines found for %s. Please ensure orders follow institutional protocols.", diagnosis)
		return text, []string{institutionalProtocols}
	}

	parts := lo.Map(results, func(r schema.GuidelineResult, _ int) string {
		return fmt.Sprintf("**Source: %s** (Page %s)\n\n%s", r.Source, r.Page, r.Content)
	})
	sources := lo.Uniq(lo.Map(results, func(r schema.GuidelineResult, _ int) string {
		return r.Source
	}))
	return strings.Join(parts, "\n\n---\n\n"), sources
}
