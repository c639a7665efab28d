package guidelines

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/Malowking/guidekb/core/indexer"
	"github.com/Malowking/guidekb/core/specialty"
	"github.com/Malowking/guidekb/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/samber/lo"
)

// GetStatistics 指南库统计：索引未就绪时只返回 empty 状态
// 文档数按当前目录中的 .pdf/.txt 文件统计，分块数来自已建索引
func (s *Service) GetStatistics(ctx context.Context) schema.Statistics {
	idx := s.readyIndex()
	if idx == nil {
		return schema.Statistics{Status: schema.StatusEmpty}
	}

	root := s.cfg.Guidelines.Dir
	files, err := indexer.ListGuidelineFiles(root)
	if err != nil {
		g.Log().Warningf(ctx, "Failed to list guideline files in %s: %v", root, err)
	}

	bySpecialty := make(map[string]int)
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			rel = f
		}
		bySpecialty[specialty.Infer(filepath.ToSlash(rel))]++
	}

	specialties := lo.Keys(bySpecialty)
	sort.Strings(specialties)

	return schema.Statistics{
		Status:         schema.StatusActive,
		TotalDocuments: len(files),
		Specialties:    specialties,
		BySpecialty:    bySpecialty,
		IndexedChunks:  idx.Info().Entries,
	}
}
